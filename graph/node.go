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
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gomlx/exceptions"
)

// MaxInputs is the maximum number of input nodes of any op.
const MaxInputs = 2

// NodeId uniquely identifies a Node within the process. Ids are assigned in creation order,
// so a node's inputs always have smaller ids than the node itself.
type NodeId int64

// InvalidNodeId is returned by Id for a nil Node.
const InvalidNodeId = NodeId(-1)

// nextNodeId is shared by all graphs, which may be built concurrently by different goroutines.
var nextNodeId atomic.Int64

// Node is one scalar in the computation graph.
//
// It is immutable after creation, except for its gradient (mutated by Backpropagate and
// ZeroGradient) and, for OpTypeParameter nodes, its value (see SetValue).
type Node struct {
	id   NodeId
	op   OpType
	name string

	value    float64
	gradient float64

	// inputs are the edges of the computation graph, only the first numInputs are set.
	inputs    [MaxInputs]*Node
	numInputs int

	// exponent is only used by OpTypePow.
	exponent float64

	// customVJP is only used by OpTypeCustom.
	customVJP VJP
}

// newNode creates a node with the given inputs. Inputs must be valid.
func newNode(op OpType, value float64, inputs ...*Node) *Node {
	if len(inputs) > MaxInputs {
		exceptions.Panicf("op %s created with %d inputs, at most %d are supported", op, len(inputs), MaxInputs)
	}
	n := &Node{
		id:        NodeId(nextNodeId.Add(1) - 1),
		op:        op,
		value:     value,
		numInputs: len(inputs),
	}
	copy(n.inputs[:], inputs)
	return n
}

// Id is the unique id of this node.
func (n *Node) Id() NodeId {
	if n == nil {
		return InvalidNodeId
	}
	return n.id
}

// Type identify the operation that created the node.
func (n *Node) Type() OpType {
	if n == nil {
		return OpTypeInvalid
	}
	return n.op
}

// Value is the forward value of the node.
func (n *Node) Value() float64 {
	n.AssertValid()
	return n.value
}

// Gradient is the gradient of the root of the last Backpropagate call with respect to this node.
// If the node took part in more than one pass without ZeroGradient, gradients are summed.
func (n *Node) Gradient() float64 {
	n.AssertValid()
	return n.gradient
}

// ZeroGradient resets the gradient of the node.
func (n *Node) ZeroGradient() {
	n.AssertValid()
	n.gradient = 0
}

// ZeroGradients resets the gradient of all the given nodes. Typically, used on the trainable
// parameters of a model between training steps.
func ZeroGradients(nodes ...*Node) {
	for _, node := range nodes {
		node.ZeroGradient()
	}
}

// SetValue changes the value of a Parameter node. Usually used by optimizers, after the gradients
// have been calculated.
//
// It panics for any other type of node: their values are a function of their inputs.
// Nodes previously computed from the parameter are not updated.
func (n *Node) SetValue(value float64) {
	n.AssertValid()
	if n.op != OpTypeParameter {
		exceptions.Panicf("SetValue(%g) called on node %s: only Parameter nodes can have their value changed", value, n)
	}
	n.value = value
}

// Inputs are the nodes used as operands to calculate this node. It returns nil for leaf nodes.
//
// The returned slice shares the node storage, don't modify it.
func (n *Node) Inputs() []*Node {
	n.AssertValid()
	if n.numInputs == 0 {
		return nil
	}
	return n.inputs[:n.numInputs]
}

// Exponent used by a OpTypePow node. It panics for other node types.
func (n *Node) Exponent() float64 {
	n.AssertValid()
	if n.op != OpTypePow {
		exceptions.Panicf("Exponent() called on node %s, which is not a Pow node", n)
	}
	return n.exponent
}

// IsLeaf returns whether the node was created with no inputs.
func (n *Node) IsLeaf() bool {
	return n.Type().IsLeaf()
}

// Name associated with the node, if one was given. See SetName.
func (n *Node) Name() string {
	if n == nil {
		return ""
	}
	return n.name
}

// SetName sets a label to the node, used when printing. It returns the node itself,
// so it can be chained.
func (n *Node) SetName(name string) *Node {
	n.AssertValid()
	n.name = name
	return n
}

// OpTag is a short label of the operation that created the node, for diagnostics only: "" for
// leaves, "+", "*", "**<exponent>", "ReLU", "exp", "log", "tanh" or "custom".
func (n *Node) OpTag() string {
	switch n.Type() {
	case OpTypeAdd:
		return "+"
	case OpTypeMul:
		return "*"
	case OpTypePow:
		return "**" + strconv.FormatFloat(n.exponent, 'g', -1, 64)
	case OpTypeRelu:
		return "ReLU"
	case OpTypeExp:
		return "exp"
	case OpTypeLog:
		return "log"
	case OpTypeTanh:
		return "tanh"
	case OpTypeCustom:
		return "custom"
	default:
		return ""
	}
}

// AssertValid panics if `n` is nil or in an invalid state.
func (n *Node) AssertValid() {
	if n == nil {
		exceptions.Panicf("Node is nil")
	}
	if n.op <= OpTypeInvalid || n.op >= opTypeLast {
		exceptions.Panicf("Node #%d in an invalid state (op=%s)", n.id, n.op)
	}
}

// String implements the `fmt.Stringer` interface.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var sb strings.Builder
	sb.WriteString("Node#")
	sb.WriteString(strconv.FormatInt(int64(n.id), 10))
	if n.name != "" {
		fmt.Fprintf(&sb, "[%s]", n.name)
	}
	if tag := n.OpTag(); tag != "" {
		sb.WriteString("(")
		sb.WriteString(tag)
		for ii := 0; ii < n.numInputs; ii++ {
			if ii == 0 {
				sb.WriteString(": ")
			} else {
				sb.WriteString(", ")
			}
			sb.WriteString("#")
			sb.WriteString(strconv.FormatInt(int64(n.inputs[ii].id), 10))
		}
		sb.WriteString(")")
	} else {
		fmt.Fprintf(&sb, "(%s)", n.op)
	}
	fmt.Fprintf(&sb, "{value=%g, gradient=%g}", n.value, n.gradient)
	return sb.String()
}
