package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/slot-booking-service/internal/appointment"
	"github.com/hackgods/slot-booking-service/internal/config"
	"github.com/hackgods/slot-booking-service/internal/schedule"
	"github.com/hackgods/slot-booking-service/internal/specialist"
)

type testServer struct {
	handler http.Handler
	sp      schedule.Specialist
	date    schedule.Date
}

func everyDay(from, to schedule.TimeOfDay) schedule.WeeklyTemplate {
	tmpl := schedule.WeeklyTemplate{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		tmpl[d] = []schedule.Interval{{Start: from, End: to}}
	}
	return tmpl
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	sp := schedule.Specialist{
		ID:                  uuid.New(),
		Name:                "Dr. Barbara Liskov",
		Specialty:           "dermatology",
		Template:            everyDay(schedule.Clock(9, 0), schedule.Clock(11, 0)),
		SlotDurationMinutes: 30,
		AcceptingPatients:   true,
	}

	cfg := config.Config{ReserveTimeout: time.Second, RetryAttempts: 1, Location: time.UTC}
	svc := appointment.NewService(appointment.NewMemoryLedger(), specialist.NewStaticDirectory(sp), nil, nil, cfg, zap.NewNop())

	return &testServer{
		handler: NewRouter(RouterConfig{Service: svc, Logger: zap.NewNop(), CORSOrigins: []string{"*"}}),
		sp:      sp,
		date:    schedule.Today(time.Now(), time.UTC).AddDays(1),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) booking(at string) map[string]string {
	return map[string]string{
		"specialist_id": s.sp.ID.String(),
		"clinic_id":     uuid.NewString(),
		"patient_id":    uuid.NewString(),
		"date":          s.date.String(),
		"time":          at,
		"reason":        "rash on left arm",
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAvailabilityEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/specialists/"+s.sp.ID.String()+"/availability?date="+s.date.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[AvailabilityResponse](t, rec)
	assert.Equal(t, s.sp.ID, resp.SpecialistID)
	assert.Equal(t, s.date.String(), resp.Date)
	assert.Equal(t, 30, resp.SlotDurationMinutes)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, resp.AvailableSlots)

	t.Run("bad date", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/specialists/"+s.sp.ID.String()+"/availability?date=tomorrow", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "date", decode[ErrorResponse](t, rec).Field)
	})

	t.Run("unknown specialist", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/specialists/"+uuid.NewString()+"/availability?date="+s.date.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "specialist_not_found", decode[ErrorResponse](t, rec).Error)
	})
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/appointments", s.booking("09:30"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "09:30", created.Time)
	assert.Equal(t, s.date.String(), created.Date)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	t.Run("taken slot returns remaining slots", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/appointments", s.booking("09:30"))
		require.Equal(t, http.StatusConflict, rec.Code)

		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "slot_unavailable", resp.Error)
		assert.Equal(t, []string{"09:00", "10:00", "10:30"}, resp.AvailableSlots)
	})

	t.Run("off-grid time", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/appointments", s.booking("09:45"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "slot_not_offered", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("validation names the field", func(t *testing.T) {
		body := s.booking("09:00")
		body["reason"] = ""
		rec := s.do(t, http.MethodPost, "/appointments", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "invalid_request", resp.Error)
		assert.Equal(t, "reason", resp.Field)
	})

	t.Run("unknown specialist", func(t *testing.T) {
		body := s.booking("09:00")
		body["specialist_id"] = uuid.NewString()
		rec := s.do(t, http.MethodPost, "/appointments", body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateAppointmentEndpoint_Concurrent(t *testing.T) {
	s := newTestServer(t)

	const n = 20
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = s.do(t, http.MethodPost, "/appointments", s.booking("10:00")).Code
		}(i)
	}
	wg.Wait()

	counts := map[int]int{}
	for _, c := range codes {
		counts[c]++
	}
	assert.Equal(t, 1, counts[http.StatusCreated])
	assert.Equal(t, n-1, counts[http.StatusConflict])
}

func TestAppointmentLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/appointments", s.booking("10:30"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[AppointmentResponse](t, rec).ID.String()

	rec = s.do(t, http.MethodGet, "/appointments/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/appointments/"+id+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/appointments/"+id+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decode[AppointmentResponse](t, rec).Status)

	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodPost, "/appointments/"+id+"/cancel", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cancelled", decode[AppointmentResponse](t, rec).Status)
	}

	rec = s.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/appointments/not-a-uuid/no-show", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAppointmentsEndpoint(t *testing.T) {
	s := newTestServer(t)
	patient := uuid.NewString()

	for _, at := range []string{"10:00", "09:00"} {
		body := s.booking(at)
		body["patient_id"] = patient
		rec := s.do(t, http.MethodPost, "/appointments", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/appointments?patient_id="+patient+"&upcoming=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[AppointmentListResponse](t, rec)
	require.Len(t, resp.Appointments, 2)
	assert.Equal(t, "09:00", resp.Appointments[0].Time)
	assert.Equal(t, "10:00", resp.Appointments[1].Time)
	assert.Equal(t, 20, resp.Limit)
	assert.Equal(t, 0, resp.Offset)

	rec = s.do(t, http.MethodGet, "/appointments?patient_id="+patient+"&limit=500&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[AppointmentListResponse](t, rec)
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, 1, resp.Offset)
	require.Len(t, resp.Appointments, 1)

	rec = s.do(t, http.MethodGet, "/appointments?patient_id="+patient+"&status=cancelled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[AppointmentListResponse](t, rec).Appointments)

	rec = s.do(t, http.MethodGet, "/appointments?patient_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/appointments?patient_id="+patient+"&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit", decode[ErrorResponse](t, rec).Field)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[ReadinessResponse](t, rec).Status)
}

type downBroker struct{}

func (downBroker) Healthy() bool { return false }

func TestReadiness_DegradedBroker(t *testing.T) {
	h := NewHealthHandler(nil, nil, downBroker{}, "test", "v0")

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["amqp"])
}
