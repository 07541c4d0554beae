// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package expr

import "fmt"

type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string {
	return e.Msg
}

func newEvalErrorf(format string, a ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, a...)}
}
