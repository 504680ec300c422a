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

type StudyStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewStudyStore(db *sql.DB, opts ...Option) *StudyStore {
	o := newOptions(opts)
	return &StudyStore{db: db, logger: o.logger, now: time.Now}
}

// SearchBySubject returns the studies whose subject is Patient/id. Rows that
// cannot be decoded are logged and skipped.
func (s *StudyStore) SearchBySubject(ctx context.Context, id domain.SubjectID) ([]*fhir.ImagingStudy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, resource FROM imaging_studies WHERE subject_ref = $1 ORDER BY id`,
		id.String(),
	)
	if err != nil {
		return nil, classify("search studies for "+id.String(), err)
	}
	defer rows.Close()

	var out []*fhir.ImagingStudy
	for rows.Next() {
		var (
			studyID string
			raw     []byte
		)
		if err := rows.Scan(&studyID, &raw); err != nil {
			return nil, classify("scan study", err)
		}
		st := &fhir.ImagingStudy{}
		if err := decode("imaging study", studyID, raw, st); err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable imaging study row",
				"request_id", requestcontext.RequestID(ctx),
				"study_id", studyID,
				"error", err,
			)
			continue
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate studies", err)
	}
	return out, nil
}

func (s *StudyStore) CreateStudy(ctx context.Context, study *fhir.ImagingStudy) (*fhir.ImagingStudy, error) {
	st := study.Clone()
	st.ResourceType = fhir.TypeImagingStudy
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.Meta = &fhir.Meta{VersionID: "1", LastUpdated: s.now().UTC().Format(time.RFC3339)}

	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode imaging study: %w", err)
	}
	var subject sql.NullString
	if ref := fhir.ReferencedID(st.Subject, fhir.TypePatient); ref != "" {
		subject = sql.NullString{String: ref, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO imaging_studies (id, subject_ref, resource, created_at) VALUES ($1, $2, $3, $4)`,
		st.ID, subject, string(raw), s.now(),
	)
	if err != nil {
		return nil, classify("insert imaging study "+st.ID, err)
	}
	return st, nil
}
