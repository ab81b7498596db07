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

import "fmt"

// OpType identifies the operation that created a Node. It selects the VJP used to back-propagate
// gradients through the node, see VJPRegistration.
type OpType int

const (
	OpTypeInvalid OpType = iota

	// OpTypeConst is a leaf created from a literal. Its value never changes.
	OpTypeConst

	// OpTypeParameter is a trainable leaf: its value can be changed with Node.SetValue.
	OpTypeParameter

	OpTypeAdd
	OpTypeMul
	OpTypePow
	OpTypeRelu
	OpTypeExp
	OpTypeLog
	OpTypeTanh

	// OpTypeCustom is an identity whose gradient is given by a user provided VJP, see WithCustomGradient.
	OpTypeCustom

	// opTypeLast is used to enumerate all valid values.
	opTypeLast
)

var opTypeNames = [...]string{
	OpTypeInvalid:   "Invalid",
	OpTypeConst:     "Const",
	OpTypeParameter: "Parameter",
	OpTypeAdd:       "Add",
	OpTypeMul:       "Mul",
	OpTypePow:       "Pow",
	OpTypeRelu:      "Relu",
	OpTypeExp:       "Exp",
	OpTypeLog:       "Log",
	OpTypeTanh:      "Tanh",
	OpTypeCustom:    "Custom",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op < 0 || op >= opTypeLast {
		return fmt.Sprintf("OpType(%d)", int(op))
	}
	return opTypeNames[op]
}

// IsLeaf returns whether nodes of this type have no inputs.
func (op OpType) IsLeaf() bool {
	return op == OpTypeConst || op == OpTypeParameter
}

// OpTypeValues returns all valid OpType values, excluding OpTypeInvalid.
func OpTypeValues() []OpType {
	values := make([]OpType, 0, int(opTypeLast)-1)
	for op := OpTypeConst; op < opTypeLast; op++ {
		values = append(values, op)
	}
	return values
}
