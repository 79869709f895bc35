package fixture

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/howeyc/fsnotify"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carenexus/ehrc-app/ehrc/fhir"
	"github.com/carenexus/ehrc-app/log"
)

// Dataset is the fixture's in-memory record store. Resources are kept as the
// raw JSON they arrived in and served back verbatim; parsing happens only to
// build the lookup indexes. Source files are never mutated, so a reload
// always reproduces the same state.
type Dataset struct {
	mu      sync.RWMutex
	builtin bool
	dir     string
	index   *datasetIndex
}

type datasetIndex struct {
	patientsByMRN map[string]patientRecord
	patientsByID  map[string]patientRecord
	conditions    map[string][]conditionRecord
	medications   map[string][]medicationRecord
	encounters    map[string][]encounterRecord
	documents     []documentRecord
}

type patientRecord struct {
	ID  string
	MRN string
	Raw json.RawMessage
}

type conditionRecord struct {
	ID        string
	PatientID string
	Status    string
	Raw       json.RawMessage
}

type medicationRecord struct {
	ID        string
	PatientID string
	Status    string
	Raw       json.RawMessage
}

type encounterRecord struct {
	ID        string
	PatientID string
	Start     time.Time
	Raw       json.RawMessage
}

type documentRecord struct {
	ID          string
	EncounterID string
	ReceivedAt  time.Time
	Raw         json.RawMessage
}

// DatasetCounts summarizes loaded resources for logging and health output.
type DatasetCounts struct {
	Patients    int `json:"patients"`
	Conditions  int `json:"conditions"`
	Medications int `json:"medications"`
	Encounters  int `json:"encounters"`
	Documents   int `json:"documents"`
}

func newDatasetIndex() *datasetIndex {
	return &datasetIndex{
		patientsByMRN: make(map[string]patientRecord),
		patientsByID:  make(map[string]patientRecord),
		conditions:    make(map[string][]conditionRecord),
		medications:   make(map[string][]medicationRecord),
		encounters:    make(map[string][]encounterRecord),
		documents:     make([]documentRecord, 0),
	}
}

// NewDataset loads the builtin bundle and, when dir is non-empty, every
// *.json bundle file under dir. Files that fail to parse are skipped with a
// warning so one bad file cannot take the fixture down.
func NewDataset(includeBuiltin bool, dir string) (*Dataset, error) {
	d := &Dataset{builtin: includeBuiltin, dir: dir, index: newDatasetIndex()}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload rebuilds all indexes from the dataset's sources. Documents received
// over the API do not survive a reload; they belong to the previous state.
func (d *Dataset) Reload() error {
	index := newDatasetIndex()

	if d.builtin {
		if err := index.addBundle([]byte(builtinBundle)); err != nil {
			return errors.Wrap(err, "builtin dataset bundle is invalid")
		}
	}

	files := 0
	if d.dir != "" {
		entries, err := ioutil.ReadDir(d.dir)
		if err != nil {
			return errors.Wrapf(err, "could not read dataset directory %s", d.dir)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(d.dir, entry.Name())
			data, err := ioutil.ReadFile(filepath.Clean(path))
			if err != nil {
				log.Fixture.WithError(err).Warnf("Skipping unreadable dataset file %s", path)
				continue
			}
			if err := index.addBundle(data); err != nil {
				log.Fixture.WithError(err).Warnf("Skipping invalid dataset file %s", path)
				continue
			}
			files++
		}
	}

	d.mu.Lock()
	d.index = index
	d.mu.Unlock()

	counts := d.Counts()
	log.Fixture.WithFields(logrus.Fields{
		"files":       files,
		"patients":    counts.Patients,
		"conditions":  counts.Conditions,
		"medications": counts.Medications,
		"encounters":  counts.Encounters,
	}).Info("Dataset loaded.")
	return nil
}

// AddBundle indexes every recognized resource in a bundle into the live
// dataset. Unrecognized resource types are ignored.
func (d *Dataset) AddBundle(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.index.addBundle(data)
}

func (ix *datasetIndex) addBundle(data []byte) error {
	bundle, err := fhir.ParseBundle(data)
	if err != nil {
		return err
	}

	for _, entry := range bundle.Entries {
		if len(entry.Resource) == 0 {
			continue
		}
		var envelope struct {
			ResourceType string          `json:"resourceType"`
			ID           string          `json:"id"`
			Subject      *fhir.Reference `json:"subject"`
		}
		if err := json.Unmarshal(entry.Resource, &envelope); err != nil {
			log.Fixture.WithError(err).Warn("Skipping undecodable bundle entry.")
			continue
		}

		switch {
		case strings.EqualFold(envelope.ResourceType, "Patient"):
			ix.addPatient(entry.Resource)
		case strings.EqualFold(envelope.ResourceType, "Condition"):
			ix.addCondition(entry.Resource, envelope.ID, refTarget(envelope.Subject))
		case strings.EqualFold(envelope.ResourceType, "MedicationRequest"):
			ix.addMedication(entry.Resource, envelope.ID, refTarget(envelope.Subject))
		case strings.EqualFold(envelope.ResourceType, "Encounter"):
			ix.addEncounter(entry.Resource, envelope.ID, refTarget(envelope.Subject))
		}
	}
	return nil
}

func (ix *datasetIndex) addPatient(raw json.RawMessage) {
	patient, err := fhir.ParsePatient(raw)
	if err != nil || patient.ID == "" {
		log.Fixture.Warn("Skipping patient entry without a usable id.")
		return
	}
	record := patientRecord{ID: patient.ID, MRN: patient.MRN, Raw: raw}
	ix.patientsByID[record.ID] = record
	if record.MRN != "" {
		ix.patientsByMRN[record.MRN] = record
	}
}

func (ix *datasetIndex) addCondition(raw json.RawMessage, id, patientID string) {
	if patientID == "" {
		log.Fixture.Warn("Skipping condition entry without a patient reference.")
		return
	}
	condition, err := fhir.ParseCondition(raw)
	if err != nil {
		log.Fixture.WithError(err).Warn("Skipping undecodable condition entry.")
		return
	}
	ix.conditions[patientID] = append(ix.conditions[patientID], conditionRecord{
		ID:        id,
		PatientID: patientID,
		Status:    condition.ClinicalStatus,
		Raw:       raw,
	})
}

func (ix *datasetIndex) addMedication(raw json.RawMessage, id, patientID string) {
	if patientID == "" {
		log.Fixture.Warn("Skipping medication entry without a patient reference.")
		return
	}
	medication, err := fhir.ParseMedication(raw)
	if err != nil {
		log.Fixture.WithError(err).Warn("Skipping undecodable medication entry.")
		return
	}
	ix.medications[patientID] = append(ix.medications[patientID], medicationRecord{
		ID:        id,
		PatientID: patientID,
		Status:    strings.ToLower(medication.Status),
		Raw:       raw,
	})
}

func (ix *datasetIndex) addEncounter(raw json.RawMessage, id, patientID string) {
	if patientID == "" {
		log.Fixture.Warn("Skipping encounter entry without a patient reference.")
		return
	}
	encounter, err := fhir.ParseEncounter(raw)
	if err != nil {
		log.Fixture.WithError(err).Warn("Skipping undecodable encounter entry.")
		return
	}
	ix.encounters[patientID] = append(ix.encounters[patientID], encounterRecord{
		ID:        id,
		PatientID: patientID,
		Start:     parseInstant(encounter.Start),
		Raw:       raw,
	})
}

// refTarget extracts the bare id from a reference like "Patient/pat-10001".
func refTarget(ref *fhir.Reference) string {
	if ref == nil || ref.Reference == "" {
		return ""
	}
	target := ref.Reference
	if i := strings.LastIndex(target, "/"); i >= 0 {
		target = target[i+1:]
	}
	return target
}

func parseInstant(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// PatientByMRN returns the raw patient resource registered under an MRN.
func (d *Dataset) PatientByMRN(mrn string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	record, ok := d.index.patientsByMRN[mrn]
	return record.Raw, ok
}

// PatientByID returns the raw patient resource registered under an internal id.
func (d *Dataset) PatientByID(id string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	record, ok := d.index.patientsByID[id]
	return record.Raw, ok
}

// ConditionsFor lists conditions for a patient, optionally filtered by
// clinical status. Unknown patients yield an empty list, matching search
// semantics.
func (d *Dataset) ConditionsFor(patientID, status string) []json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status = strings.ToLower(status)
	results := make([]json.RawMessage, 0)
	for _, record := range d.index.conditions[patientID] {
		if status != "" && record.Status != status {
			continue
		}
		results = append(results, record.Raw)
	}
	return results
}

// MedicationsFor lists medication requests for a patient, optionally filtered
// by status.
func (d *Dataset) MedicationsFor(patientID, status string) []json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status = strings.ToLower(status)
	results := make([]json.RawMessage, 0)
	for _, record := range d.index.medications[patientID] {
		if status != "" && record.Status != status {
			continue
		}
		results = append(results, record.Raw)
	}
	return results
}

// EncountersFor lists encounters for a patient. With newestFirst the list is
// ordered by period start descending; encounters without a parseable start
// sort last. A positive limit caps the result.
func (d *Dataset) EncountersFor(patientID string, limit int, newestFirst bool) []json.RawMessage {
	d.mu.RLock()
	records := make([]encounterRecord, len(d.index.encounters[patientID]))
	copy(records, d.index.encounters[patientID])
	d.mu.RUnlock()

	if newestFirst {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Start.After(records[j].Start)
		})
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	results := make([]json.RawMessage, 0, len(records))
	for _, record := range records {
		results = append(results, record.Raw)
	}
	return results
}

// AddDocument stores a submitted document and returns its assigned id.
func (d *Dataset) AddDocument(raw json.RawMessage) (string, error) {
	var envelope struct {
		ResourceType string `json:"resourceType"`
		Context      struct {
			Encounter []fhir.Reference `json:"encounter"`
		} `json:"context"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", errors.Wrap(err, "document is not valid JSON")
	}
	if !strings.EqualFold(envelope.ResourceType, "DocumentReference") {
		return "", errors.Errorf("expected resourceType DocumentReference, got %q", envelope.ResourceType)
	}

	encounterID := ""
	if len(envelope.Context.Encounter) > 0 {
		encounterID = refTarget(&envelope.Context.Encounter[0])
	}

	record := documentRecord{
		ID:          uuid.NewRandom().String(),
		EncounterID: encounterID,
		ReceivedAt:  time.Now().UTC(),
		Raw:         raw,
	}

	d.mu.Lock()
	d.index.documents = append(d.index.documents, record)
	d.mu.Unlock()
	return record.ID, nil
}

// Documents returns the raw documents received since the last reload.
func (d *Dataset) Documents() []json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	results := make([]json.RawMessage, 0, len(d.index.documents))
	for _, record := range d.index.documents {
		results = append(results, record.Raw)
	}
	return results
}

// Counts reports how many resources are currently indexed.
func (d *Dataset) Counts() DatasetCounts {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := DatasetCounts{
		Patients:  len(d.index.patientsByID),
		Documents: len(d.index.documents),
	}
	for _, records := range d.index.conditions {
		counts.Conditions += len(records)
	}
	for _, records := range d.index.medications {
		counts.Medications += len(records)
	}
	for _, records := range d.index.encounters {
		counts.Encounters += len(records)
	}
	return counts
}

// Watch reloads the dataset whenever a JSON file in the dataset directory
// changes. The returned stop function ends the watch.
func (d *Dataset) Watch() (func(), error) {
	if d.dir == "" {
		return nil, errors.New("no dataset directory to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "could not create dataset watcher")
	}
	if err := watcher.Watch(d.dir); err != nil {
		_ = watcher.Close()
		return nil, errors.Wrapf(err, "could not watch dataset directory %s", d.dir)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Event:
				if !ok {
					return
				}
				if ev.IsAttrib() || !strings.HasSuffix(ev.Name, ".json") {
					continue
				}
				log.Fixture.WithField("event", ev.String()).Info("Dataset change detected, reloading.")
				if err := d.Reload(); err != nil {
					log.Fixture.WithError(err).Error("Dataset reload failed, keeping previous state.")
				}
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				log.Fixture.WithError(err).Warn("Dataset watcher error.")
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		close(done)
		_ = watcher.Close()
	}
	return stop, nil
}
