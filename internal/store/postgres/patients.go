package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
	"pseudonym-gateway/pkg/requestcontext"
)

type PatientStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewPatientStore(db *sql.DB, opts ...Option) *PatientStore {
	o := newOptions(opts)
	return &PatientStore{db: db, logger: o.logger, now: time.Now}
}

// ListPatients enumerates every subject, ordered by id. Rows that cannot be
// decoded are logged and skipped.
func (s *PatientStore) ListPatients(ctx context.Context) ([]*fhir.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, resource FROM patients ORDER BY id`)
	if err != nil {
		return nil, classify("list patients", err)
	}
	defer rows.Close()

	var out []*fhir.Patient
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, classify("scan patient", err)
		}
		p := &fhir.Patient{}
		if err := decode("patient", id, raw, p); err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable patient row",
				"request_id", requestcontext.RequestID(ctx),
				"subject_id", id,
				"error", err,
			)
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate patients", err)
	}
	return out, nil
}

func (s *PatientStore) FindPatient(ctx context.Context, id domain.SubjectID) (*fhir.Patient, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT resource FROM patients WHERE id = $1`, id.String()).Scan(&raw)
	if err != nil {
		return nil, classify("find patient "+id.String(), err)
	}
	p := &fhir.Patient{}
	if err := decode("patient", id.String(), raw, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PatientStore) CreatePatient(ctx context.Context, patient *fhir.Patient) (*fhir.Patient, error) {
	p := patient.Clone()
	p.ResourceType = fhir.TypePatient
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Meta = &fhir.Meta{VersionID: "1", LastUpdated: s.now().UTC().Format(time.RFC3339)}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode patient: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO patients (id, resource, created_at) VALUES ($1, $2, $3)`,
		p.ID, string(raw), s.now(),
	)
	if err != nil {
		return nil, classify("insert patient "+p.ID, err)
	}
	return p, nil
}
