package dcmi

import (
	"codeberg.org/ferrule/dcmictl/internal/errors"
)

// cardSnapshot is one card's enumeration result at snapshot time.
type cardSnapshot struct {
	id      CardID
	devices int32
}

// DeviceList is a lazy, finite, non-restartable sequence of device handles
// reflecting a single point-in-time snapshot of the topology. Devices added
// or removed after ListDevices are not reflected; a handle whose device has
// since gone fails its next query with ErrDeviceUnavailable.
type DeviceList struct {
	lib   *Library
	tok   *validityToken
	cards []cardSnapshot
	ci    int
	di    int32
	total int
}

// ListDevices enumerates present cards and their devices. It requires the
// library to be Ready. The card list is fetched through the size/fill
// negotiation; per-card device counts are taken as part of the same
// snapshot.
func (l *Library) ListDevices() (*DeviceList, error) {
	tok, err := l.currentToken()
	if err != nil {
		return nil, err
	}

	ids, err := negotiate(func(buf []int32) (int, int, int32, error) {
		var written, required int
		var status int32
		err := l.dispatch(tok, func(api RawAPI) {
			written, required, status = api.CardList(buf)
		})
		return written, required, status, err
	})
	if err != nil {
		return nil, err
	}

	list := &DeviceList{lib: l, tok: tok, cards: make([]cardSnapshot, 0, len(ids))}
	for _, id := range ids {
		var count, status int32
		if err := l.dispatch(tok, func(api RawAPI) {
			count, status = api.DeviceCount(id)
		}); err != nil {
			return nil, err
		}
		if err := statusErr(status); err != nil {
			// A card that vanished mid-snapshot simply drops out.
			if errors.HasCode(err, ErrDeviceUnavailable) {
				continue
			}
			return nil, err
		}
		if count < 0 {
			return nil, errors.WithData(ErrMalformedResponse, count)
		}
		list.cards = append(list.cards, cardSnapshot{id: CardID(id), devices: count})
		list.total += int(count)
	}

	l.log.Debug().
		Int("cards", len(list.cards)).
		Int("devices", list.total).
		Msg("enumerated devices")

	return list, nil
}

// Len reports how many handles the snapshot holds in total, including any
// already consumed.
func (dl *DeviceList) Len() int {
	return dl.total
}

// Next yields the next device handle, or false when the sequence is
// exhausted. The sequence cannot be restarted; enumerate again for a fresh
// snapshot.
func (dl *DeviceList) Next() (*DeviceHandle, bool) {
	for dl.ci < len(dl.cards) {
		card := dl.cards[dl.ci]
		if dl.di < card.devices {
			h := &DeviceHandle{
				lib:    dl.lib,
				tok:    dl.tok,
				card:   card.id,
				device: DeviceID(dl.di),
			}
			dl.di++
			return h, true
		}
		dl.ci++
		dl.di = 0
	}
	return nil, false
}

// Rest drains the remaining handles into a slice.
func (dl *DeviceList) Rest() []*DeviceHandle {
	handles := make([]*DeviceHandle, 0, dl.total)
	for {
		h, ok := dl.Next()
		if !ok {
			return handles
		}
		handles = append(handles, h)
	}
}
