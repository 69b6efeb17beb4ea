package classfile

import (
	"errors"
	"fmt"
)

// ErrBadDescriptor is returned for malformed field or method descriptors.
var ErrBadDescriptor = errors.New("malformed descriptor")

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []string
	Return string
}

// ArgSlots returns the number of operand stack slots taken by the
// parameters.
func (d MethodDescriptor) ArgSlots() int {
	n := 0
	for _, p := range d.Params {
		n += SlotSize(p)
	}
	return n
}

// ReturnSlots returns the number of stack slots pushed by the return value.
func (d MethodDescriptor) ReturnSlots() int {
	return SlotSize(d.Return)
}

// SlotSize returns the stack slots a value of the field type occupies.
func SlotSize(desc string) int {
	switch desc {
	case "V":
		return 0
	case "J", "D":
		return 2
	default:
		return 1
	}
}

// ParseMethodDescriptor parses a descriptor such as "(I[JLjava/lang/String;)V".
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	var md MethodDescriptor
	if len(desc) < 3 || desc[0] != '(' {
		return md, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldTypeLen(desc[i:])
		if err != nil {
			return md, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
		}
		md.Params = append(md.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return md, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		n, err := fieldTypeLen(ret)
		if err != nil || n != len(ret) {
			return md, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
		}
	}
	md.Return = ret
	return md, nil
}

// ValidFieldDescriptor reports whether desc is a single field type.
func ValidFieldDescriptor(desc string) bool {
	n, err := fieldTypeLen(desc)
	return err == nil && n == len(desc)
}

func fieldTypeLen(s string) (int, error) {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	if dims > MaxArrayDim || dims >= len(s) {
		return 0, ErrBadDescriptor
	}
	switch s[dims] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return dims + 1, nil
	case 'L':
		for i := dims + 1; i < len(s); i++ {
			if s[i] == ';' {
				if i == dims+1 {
					return 0, ErrBadDescriptor
				}
				return i + 1, nil
			}
		}
	}
	return 0, ErrBadDescriptor
}
