package extract

import (
	"fmt"
	"log"
	"time"

	"wg-fleet/pkg/keys"
	"wg-fleet/pkg/ledger"
	"wg-fleet/pkg/model"
	"wg-fleet/pkg/wgconf"
)

// Importer runs whole import batches: parse, extract, assign identities,
// persist. One Import call holds the ledger's single-writer lock for its
// full duration and commits atomically.
type Importer struct {
	Ledger *ledger.Ledger
	Opts   Options
}

func NewImporter(l *ledger.Ledger) *Importer {
	return &Importer{Ledger: l, Opts: DefaultOptions()}
}

// Import ingests one configuration file. Structure errors and identity
// conflicts abort the batch (nothing is persisted); a field error fails only
// its own entity and shows up in the report. The returned device is the
// semantic model that was persisted, keyed by the identity derived from the
// interface private key.
func (im *Importer) Import(source, raw string) (model.Device, model.ImportReport, error) {
	report := model.ImportReport{Source: source, Timestamp: time.Now()}

	entities, err := wgconf.Parse(raw)
	if err != nil {
		return model.Device{}, report, err
	}

	var device model.Device
	err = im.Ledger.Exclusive(func(tx *ledger.Txn) error {
		iface, _, ifaceErr := ExtractInterface(entities[0])
		if ifaceErr != nil {
			report.Results = append(report.Results, model.EntityResult{
				Index: 0, SectionTag: entities[0].SectionTag, Error: ifaceErr.Error(),
			})
			report.Failed++
		}

		var peers []model.PeerSection
		for i, e := range entities[1:] {
			p, perr := ExtractPeer(e)
			if perr != nil {
				report.Results = append(report.Results, model.EntityResult{
					Index: i + 1, SectionTag: e.SectionTag, Error: perr.Error(),
				})
				report.Failed++
				continue
			}
			id, aerr := tx.AssignIdentity(p.PublicKey, p.Hostname, model.KindRemote, guidHint(p))
			if aerr != nil {
				return aerr // identity conflicts abort the whole batch
			}
			p.PermanentGuid = id.PermanentGuid
			if p.Hostname == "" {
				p.Hostname = id.Hostname
			} else if err := tx.SetHostname(id.PermanentGuid, p.Hostname); err != nil {
				return fmt.Errorf("update hostname for %s: %w", p.Hostname, err)
			}
			peers = append(peers, p)
			report.Results = append(report.Results, model.EntityResult{
				Index: i + 1, SectionTag: e.SectionTag, Guid: id.PermanentGuid, OK: true,
			})
			report.Passed++
		}

		if ifaceErr != nil {
			// no usable interface: report what we learned, persist nothing
			return nil
		}
		report.Results = append([]model.EntityResult{{
			Index: 0, SectionTag: entities[0].SectionTag, OK: true,
		}}, report.Results...)
		report.Passed++

		device = model.Device{
			Kind:      DetectKind(iface, len(peers), im.Opts),
			Interface: iface,
			Peers:     peers,
		}
		report.Kind = device.Kind

		devicePub, derr := keys.DerivePublicKey(iface.PrivateKey)
		if derr != nil {
			return fmt.Errorf("derive device key: %w", derr)
		}
		deviceID, aerr := tx.AssignIdentity(devicePub, source, device.Kind, "")
		if aerr != nil {
			return aerr
		}
		if deviceID.Kind != device.Kind {
			deviceID.Kind = device.Kind
			if err := tx.Store().UpsertIdentity(deviceID); err != nil {
				return fmt.Errorf("update device kind: %w", err)
			}
		}
		report.Results[0].Guid = deviceID.PermanentGuid

		if err := tx.Store().SaveDevice(deviceID.PermanentGuid, device); err != nil {
			return fmt.Errorf("save device: %w", err)
		}
		if rs, ok := tx.Store().(interface {
			SaveRules(string, []model.CommandPair, []model.CommandSingleton) error
		}); ok {
			if err := rs.SaveRules(deviceID.PermanentGuid, iface.Pairs, iface.Singletons); err != nil {
				return fmt.Errorf("save rules: %w", err)
			}
		}
		return tx.Store().AppendAudit(model.AuditEntry{
			Actor:     "importer",
			Action:    "import",
			Target:    deviceID.PermanentGuid,
			Detail:    fmt.Sprintf("source=%s kind=%s peers=%d failed=%d", source, device.Kind, len(peers), report.Failed),
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		return model.Device{}, report, err
	}

	log.Printf("import %s: kind=%s passed=%d failed=%d", source, report.Kind, report.Passed, report.Failed)
	return device, report, nil
}

// guidHint picks up an explicit identity binding documented in the peer's
// comments ("permanent_guid: <key>"). That is the manual re-association path
// after an out-of-band rotation.
func guidHint(p model.PeerSection) string {
	for _, c := range p.Comments {
		if c.Category == model.CommentGuidRef && c.GuidReference != "" {
			return c.GuidReference
		}
	}
	return ""
}
