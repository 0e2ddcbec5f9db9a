package central

import (
	"github.com/bit-cook/ZSWatch/internal/ble"
	"github.com/bit-cook/ZSWatch/internal/ble/advert"
)

// MaxNameLength bounds a peripheral's display name, in characters.
const MaxNameLength = 30

// Peripheral is a classified, not yet connected, device.
type Peripheral struct {
	Name     string      `json:"name"`
	Address  ble.Address `json:"address"`
	Category Category    `json:"category"`
	RSSI     int16       `json:"rssi"`
}

// DisplayName returns the name, or "Unknown" when none was advertised.
func (p Peripheral) DisplayName() string {
	if p.Name == "" {
		return "Unknown"
	}
	return p.Name
}

// classify matches adv against the active category. Only connectable
// advertisements carrying the category's service UUID match.
func classify(adv ble.Advertisement, active Category) (Peripheral, bool) {
	if !adv.Connectable {
		return Peripheral{}, false
	}

	// A broken trailing record still leaves the earlier fields usable.
	fields, _ := advert.Parse(adv.Payload)

	service, _ := active.gatt()
	if !fields.HasService(uint16(service)) {
		return Peripheral{}, false
	}

	return Peripheral{
		Name:     truncateName(fields.Name),
		Address:  adv.Address,
		Category: active,
		RSSI:     adv.RSSI,
	}, true
}

func truncateName(name string) string {
	r := []rune(name)
	if len(r) <= MaxNameLength {
		return name
	}
	return string(r[:MaxNameLength])
}
