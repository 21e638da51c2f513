package admin

import (
	"fmt"
	"strings"
)

// Identity names the registered device-admin receiver component. It is a
// value type; copies are interchangeable and safe to use as map keys.
type Identity struct {
	Package  string `json:"package" yaml:"package"`
	Receiver string `json:"receiver" yaml:"receiver"`
}

// NewIdentity builds an Identity, expanding a receiver that starts with "."
// relative to the package.
func NewIdentity(pkg, receiver string) (Identity, error) {
	pkg = strings.TrimSpace(pkg)
	receiver = strings.TrimSpace(receiver)
	if pkg == "" {
		return Identity{}, fmt.Errorf("%w: identity package is empty", ErrInvalidParameter)
	}
	if receiver == "" {
		return Identity{}, fmt.Errorf("%w: identity receiver is empty", ErrInvalidParameter)
	}
	if strings.HasPrefix(receiver, ".") {
		receiver = pkg + receiver
	}
	return Identity{Package: pkg, Receiver: receiver}, nil
}

// ParseIdentity accepts the flattened "package/receiver" form.
func ParseIdentity(s string) (Identity, error) {
	pkg, receiver, ok := strings.Cut(s, "/")
	if !ok {
		return Identity{}, fmt.Errorf("%w: identity %q is not package/receiver", ErrInvalidParameter, s)
	}
	return NewIdentity(pkg, receiver)
}

func (id Identity) String() string {
	return id.Package + "/" + id.Receiver
}

// ShortString abbreviates the receiver when it lives inside the package.
func (id Identity) ShortString() string {
	if rest, ok := strings.CutPrefix(id.Receiver, id.Package); ok && strings.HasPrefix(rest, ".") {
		return id.Package + "/" + rest
	}
	return id.String()
}
