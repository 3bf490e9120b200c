package labtests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wolfman30/hmpv-lab-platform/internal/storage"
)

// Record keys of the durable layout.
const (
	KeyAppointments = "testAppointments"
	KeyReports      = "reports"
)

// Snapshot is the full durable state of the store.
type Snapshot struct {
	Appointments []Appointment
	Reports      []Report
}

// Adapter maps the store's collections onto named JSON records.
type Adapter struct {
	backend storage.Backend
}

func NewAdapter(backend storage.Backend) *Adapter {
	if backend == nil {
		panic("labtests: storage backend required")
	}
	return &Adapter{backend: backend}
}

// Load reads both collections. An absent appointments record seeds the
// backend with the defaults; an absent reports record is an empty list.
func (a *Adapter) Load(ctx context.Context) (Snapshot, error) {
	rawAppts, err := a.backend.Get(ctx, KeyAppointments)
	if errors.Is(err, storage.ErrNotFound) {
		snap := Snapshot{Appointments: DefaultAppointments(), Reports: DefaultReports()}
		if err := a.Save(ctx, snap); err != nil {
			return Snapshot{}, fmt.Errorf("labtests: seed: %w", err)
		}
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("labtests: load appointments: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(rawAppts, &snap.Appointments); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, KeyAppointments, err)
	}

	rawReports, err := a.backend.Get(ctx, KeyReports)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		snap.Reports = []Report{}
	case err != nil:
		return Snapshot{}, fmt.Errorf("labtests: load reports: %w", err)
	default:
		if err := json.Unmarshal(rawReports, &snap.Reports); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, KeyReports, err)
		}
	}
	if snap.Appointments == nil {
		snap.Appointments = []Appointment{}
	}
	if snap.Reports == nil {
		snap.Reports = []Report{}
	}
	return snap, nil
}

// Save overwrites both records in one atomic write.
func (a *Adapter) Save(ctx context.Context, snap Snapshot) error {
	appts := snap.Appointments
	if appts == nil {
		appts = []Appointment{}
	}
	reports := snap.Reports
	if reports == nil {
		reports = []Report{}
	}
	rawAppts, err := json.Marshal(appts)
	if err != nil {
		return fmt.Errorf("labtests: encode appointments: %w", err)
	}
	rawReports, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("labtests: encode reports: %w", err)
	}
	if err := a.backend.PutAll(ctx, map[string][]byte{
		KeyAppointments: rawAppts,
		KeyReports:      rawReports,
	}); err != nil {
		return fmt.Errorf("labtests: save: %w", err)
	}
	return nil
}
