// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tool implements the function registry consumed by the chat
// engine.
//
// A Registry is immutable after construction and safe for concurrent use.
// Dispatch fans each call of a batch out to its own goroutine, joins all
// of them, and returns results in call order; any single failure fails the
// batch. Built-in functions are selected by name from configuration via
// NewBuiltinRegistry.
package tool
