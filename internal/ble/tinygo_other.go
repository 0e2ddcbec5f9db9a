//go:build !linux

package ble

import (
	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"
)

// ErrAdapterID is returned when a host controller id is requested on a
// platform that only exposes the default adapter.
var ErrAdapterID = errors.New("ble: selecting an adapter by id is only supported on Linux")

func newHostAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return nil, ErrAdapterID
	}
	return bluetooth.DefaultAdapter, nil
}
