// Package tgui holds small Telegram UI helpers for HTML parse mode: escaping,
// inline keyboards and a message builder.
package tgui
