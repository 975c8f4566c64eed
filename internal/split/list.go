package split

import (
	"github.com/sirupsen/logrus"

	"audio-curator/internal/manifest"
)

// ByList keeps the entries of m whose id is held out, in manifest order.
// Held-out ids that m does not contain are returned as missing; validation
// lists outlive manifest revisions, so they are only logged.
func ByList(m *manifest.Manifest, heldOut []string, log logrus.FieldLogger) (val *manifest.Manifest, missing []string) {
	set := make(map[string]struct{}, len(heldOut))
	for _, id := range heldOut {
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		if !m.Has(id) {
			missing = append(missing, id)
		}
	}
	val = m.Restrict(set)

	if log != nil && len(missing) > 0 {
		log.WithFields(logrus.Fields{
			"held_out": len(set),
			"missing":  len(missing),
			"first":    manifest.FirstN(missing, 5),
		}).Warn("held-out ids not in manifest")
	}
	return val, missing
}

// Tables routes every table of d into the validation and training dirs. The
// split is by key: utterance keyed tables follow their utterance, speaker
// keyed tables go to whichever side still references the speaker.
func Tables(d *manifest.Dir, val *manifest.Manifest) (valDir, trainDir *manifest.Dir) {
	valIDs := val.IDSet()
	trainIDs := make(map[string]struct{}, d.Manifest.Len())
	for _, id := range d.Manifest.IDs() {
		if _, ok := valIDs[id]; !ok {
			trainIDs[id] = struct{}{}
		}
	}
	return d.Restrict(valIDs), d.Restrict(trainIDs)
}
