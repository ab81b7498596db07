/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package graph

import (
	"fmt"

	"github.com/pkg/errors"
)

// UnsupportedOperandError is thrown (panic) when an op receives an operand it cannot promote to a
// scalar Node: e.g. a Node used as exponent of Pow, or a value that is neither a Node nor a number.
type UnsupportedOperandError struct {
	// Op is the name of the op that received the operand.
	Op string

	// Operand is the offending value.
	Operand any
}

// Error implements the error interface.
func (e *UnsupportedOperandError) Error() string {
	if node, isNode := e.Operand.(*Node); isNode {
		if node == nil {
			return fmt.Sprintf("%s: unsupported operand, nil *Node", e.Op)
		}
		return fmt.Sprintf("%s: unsupported operand %s, a plain number is required", e.Op, e.Operand)
	}
	return fmt.Sprintf("%s: unsupported operand of type %T (%v), it must be a *Node or a number", e.Op, e.Operand, e.Operand)
}

// GraphIntegrityError is thrown (panic) if the graph is found to be inconsistent: e.g. a cycle is
// found during traversal, or a VJP returns the wrong number of gradients.
// It indicates a bug, and it should not be recovered from.
type GraphIntegrityError struct {
	// Node where the inconsistency was found.
	Node *Node

	// Reason describes the inconsistency.
	Reason string
}

// Error implements the error interface.
func (e *GraphIntegrityError) Error() string {
	return fmt.Sprintf("graph integrity violated at %s: %s", e.Node, e.Reason)
}

// throwUnsupportedOperand panics with an UnsupportedOperandError, with a stack-trace.
func throwUnsupportedOperand(op string, operand any) {
	panic(errors.WithStack(&UnsupportedOperandError{Op: op, Operand: operand}))
}

// throwGraphIntegrity panics with a GraphIntegrityError, with a stack-trace.
func throwGraphIntegrity(node *Node, format string, args ...any) {
	panic(errors.WithStack(&GraphIntegrityError{Node: node, Reason: fmt.Sprintf(format, args...)}))
}
