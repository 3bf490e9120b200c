package labtests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hmpv-lab-platform/internal/storage"
)

func TestLoadSeedsEmptyBackend(t *testing.T) {
	backend := storage.NewMemoryBackend()
	adapter := NewAdapter(backend)

	snap, err := adapter.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultAppointments(), snap.Appointments)
	assert.Equal(t, DefaultReports(), snap.Reports)
	assert.Equal(t, 2, backend.Len(), "defaults written back")
}

func TestLoadMissingReportsIsEmpty(t *testing.T) {
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.PutAll(context.Background(), map[string][]byte{KeyAppointments: []byte(`[]`)}))

	snap, err := NewAdapter(backend).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Appointments)
	assert.NotNil(t, snap.Reports)
	assert.Empty(t, snap.Reports)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	adapter := NewAdapter(storage.NewMemoryBackend())
	ctx := context.Background()

	want := Snapshot{
		Appointments: append(DefaultAppointments(), Appointment{
			ID:           "app-3",
			TestID:       "test-4",
			TestName:     "HMPV Rapid Antigen Test",
			PatientID:    "user-1",
			PatientName:  "Ada",
			PatientEmail: "ada@example.com",
			DateTime:     time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC),
			Address:      "2 Side St",
			Status:       StatusCancelled,
			TrackingID:   "HMPV-1003",
			CreatedAt:    time.Date(2025, 6, 20, 10, 0, 0, 123000000, time.UTC),
		}),
		Reports: DefaultReports(),
	}
	require.NoError(t, adapter.Save(ctx, want))
	got, err := adapter.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadReadsZonelessTimestamps(t *testing.T) {
	backend := storage.NewMemoryBackend()
	legacy := `[{"id":"app-1","testId":"test-1","testName":"HMPV PCR Test","patientId":"patient-123",
		"patientName":"Test Patient","patientEmail":"patient@test.com","dateTime":"2025-05-25T10:00:00",
		"address":"123 Test St, Test City","status":"pending","trackingId":"HMPV-1001",
		"createdAt":"2025-05-20T08:30:00.000Z"}]`
	require.NoError(t, backend.PutAll(context.Background(), map[string][]byte{
		KeyAppointments: []byte(legacy),
		KeyReports:      []byte(`[]`),
	}))

	snap, err := NewAdapter(backend).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Appointments, 1)
	assert.True(t, snap.Appointments[0].DateTime.Equal(time.Date(2025, 5, 25, 10, 0, 0, 0, time.UTC)))
	assert.True(t, snap.Appointments[0].CreatedAt.Equal(time.Date(2025, 5, 20, 8, 30, 0, 0, time.UTC)))
}

func TestSaveUsesDurableFieldNames(t *testing.T) {
	backend := storage.NewMemoryBackend()
	require.NoError(t, NewAdapter(backend).Save(context.Background(), Snapshot{
		Appointments: DefaultAppointments()[:1],
	}))
	raw, err := backend.Get(context.Background(), KeyAppointments)
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(raw, &records))
	for _, key := range []string{"id", "testId", "testName", "patientId", "patientName", "patientEmail", "dateTime", "address", "status", "trackingId", "createdAt"} {
		assert.Contains(t, records[0], key)
	}
	assert.NotContains(t, records[0], "reportId")

	reports, err := backend.Get(context.Background(), KeyReports)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(reports))
}

func TestLoadCorruptReports(t *testing.T) {
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.PutAll(context.Background(), map[string][]byte{
		KeyAppointments: []byte(`[]`),
		KeyReports:      []byte(`{`),
	}))
	_, err := NewAdapter(backend).Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrCorrupt)
}
