package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/letsspeak/apps/api/echo"
	"github.com/trezcool/letsspeak/core"
	"github.com/trezcool/letsspeak/core/schedule"
	"github.com/trezcool/letsspeak/storage/database/inmem"
	"github.com/trezcool/letsspeak/tests"
)

type fixture struct {
	conf     *core.Config
	app      *Server
	repo     schedule.Repository
	trainer  schedule.Trainer
	course   schedule.Course
	lectures []schedule.Lecture
}

func setup(t *testing.T) *fixture {
	conf := &core.Config{Env: "TEST", TestMode: true, AppName: "LetsSpeak", SecretKey: "secret"}
	conf.Server.JWTExpirationDelta = time.Hour

	db := inmemdb.Open()
	repo := inmemdb.NewScheduleRepository(db)
	logger := testutil.NewLogger()

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	schedule.InitValidators(validate, translator)

	svc := schedule.NewService(db, repo, schedule.NopNotifier(), logger, schedule.Options{DefaultLectureTime: "16:00"})

	f := &fixture{
		conf: conf,
		repo: repo,
		app:  NewServer(conf, logger, &Deps{ScheduleSvc: svc, Validate: validate, Translator: translator}),
	}
	f.trainer = testutil.CreateTrainer(t, repo, "Jane", "jane@test.test")
	f.course = testutil.CreateCourse(t, repo, f.trainer.ID, "English B1", 8, "18:00", time.Monday)
	f.lectures = testutil.CreateLectures(t, repo, f.course.ID, "2024-01-01", 8)
	return f
}

func (f *fixture) token(t *testing.T, role, trainerID string) string {
	token, err := GenerateToken([]byte(f.conf.SecretKey), NewClaims(f.conf, "u-"+role, role, trainerID))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (f *fixture) trainerToken(t *testing.T) string {
	return f.token(t, schedule.RoleTrainer, f.trainer.ID)
}

type response struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantErr  string // envelope code of a failure
	check    func(t *testing.T, data json.RawMessage)
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func unmarshalData(t *testing.T, data json.RawMessage, obj interface{}) {
	if err := json.Unmarshal(data, obj); err != nil {
		t.Fatalf("unmarshalData() failed: %v; data %s", err, data)
	}
}

func (f *fixture) run(t *testing.T, tt httpTest) {
	t.Run(tt.name, func(t *testing.T) {
		req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
		f.app.ServeHTTP(rec, req)

		if rec.Code != tt.wantCode {
			t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
		}
		var res response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())

		if tt.wantErr != "" {
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantErr, res.Code)
		} else {
			assert.True(t, res.Success)
			assert.Equal(t, "ok", res.Code)
		}
		if tt.check != nil {
			tt.check(t, res.Data)
		}
	})
}
