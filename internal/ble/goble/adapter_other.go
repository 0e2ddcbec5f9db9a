//go:build !linux

package goble

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

// ErrUnsupported is returned on hosts without a raw HCI socket.
var ErrUnsupported = errors.New("goble: HCI backend is only supported on Linux")

// Adapter is unavailable on this platform.
type Adapter struct{}

func NewAdapter(id string, _ logrus.FieldLogger) (*Adapter, error) {
	if _, err := deviceID(id); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

func (a *Adapter) Enable() error { return ErrUnsupported }

func (a *Adapter) Close() error { return nil }

func (a *Adapter) Scan(context.Context, func(ble.Advertisement)) error { return ErrUnsupported }

func (a *Adapter) Connect(context.Context, ble.Address) (ble.Connection, error) {
	return nil, ErrUnsupported
}
