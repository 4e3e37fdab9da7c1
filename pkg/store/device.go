package store

import "wg-fleet/pkg/model"

// deviceDoc is the persisted form of a device model. The model types redact
// private material from their JSON (the API serves them directly), so the
// backends that store devices as documents carry the secrets alongside and
// splice them back on load.
type deviceDoc struct {
	Device              model.Device `json:"device"`
	InterfacePrivateKey string       `json:"interfacePrivateKey,omitempty"`
	PeerPresharedKeys   []string     `json:"peerPresharedKeys,omitempty"` // parallel to Device.Peers
}

func encodeDevice(d model.Device) deviceDoc {
	doc := deviceDoc{Device: d, InterfacePrivateKey: d.Interface.PrivateKey}
	for _, p := range d.Peers {
		doc.PeerPresharedKeys = append(doc.PeerPresharedKeys, p.PresharedKey)
	}
	return doc
}

func (doc deviceDoc) decode() model.Device {
	d := doc.Device
	d.Interface.PrivateKey = doc.InterfacePrivateKey
	for i := range d.Peers {
		if i < len(doc.PeerPresharedKeys) {
			d.Peers[i].PresharedKey = doc.PeerPresharedKeys[i]
		}
	}
	return d
}
