package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"asta_radar/internal/domain"
)

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil || p.IsZero() {
		return nil
	}
	return p.UTC()
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// marshalOpt encodes v, returning nil when isNil so the column stays NULL.
func marshalOpt(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Repo is the MySQL publish sink, primary-set reader and run log.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// PublishAuction upserts on external_id. Media, enrichment, coordinates and
// raw payload are only overwritten when the new record carries them.
func (r *Repo) PublishAuction(ctx context.Context, a domain.AuctionRecord) error {
	if a.ExternalID == "" {
		return fmt.Errorf("publish auction: empty external_id")
	}
	m := a.Media
	media, err := marshalOpt(m, len(m.Photos)+len(m.FloorPlans)+len(m.Documents) == 0)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	breakdown, err := marshalOpt(a.Breakdown, a.Breakdown == nil)
	if err != nil {
		return fmt.Errorf("encode score breakdown: %w", err)
	}
	enrichment, err := marshalOpt(a.Enrichment, a.Enrichment == nil)
	if err != nil {
		return fmt.Errorf("encode enrichment: %w", err)
	}
	var lat, lon any
	if a.Coords != nil {
		lat, lon = a.Coords.Lat, a.Coords.Lon
	}
	pt := a.PropertyType
	if pt == "" {
		pt = domain.Other
	}
	status := a.Status
	if status == "" {
		status = domain.StatusActive
	}
	round := a.AuctionRound
	if round < 1 {
		round = 1
	}
	scraped := a.ScrapedAt
	if scraped.IsZero() {
		scraped = time.Now()
	}

	_, err = r.db.ExecContext(ctx, upsertAuctionSQL,
		a.ExternalID,
		valStr(a.Title),
		valStr(a.Description),
		valStr(a.FullText),
		valStr(a.Category),
		string(pt),
		valStr(a.City),
		valStr(a.Province),
		valStr(a.Address),
		lat,
		lon,
		valF64(a.SurfaceSqm),
		valInt(a.Rooms),
		valInt(a.Bathrooms),
		valInt(a.Floor),
		valF64(a.BasePrice),
		valF64(a.CurrentPrice),
		valF64(a.EstimatedValue),
		valTime(a.AuctionDate),
		round,
		valStr(a.Court),
		valStr(a.CaseNumber),
		string(status),
		valBool(a.IsOccupied),
		valF64(a.Score),
		valJSON(breakdown),
		valJSON(media),
		valJSON(enrichment),
		valStr(a.SourceURL),
		valJSON(a.Raw),
		scraped.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert auction %s: %w", a.ExternalID, err)
	}
	return nil
}

// ListPrimary returns every Active auction, soonest sale first.
func (r *Repo) ListPrimary(ctx context.Context) ([]domain.AuctionRecord, error) {
	rows, err := r.db.QueryContext(ctx, listPrimarySQL)
	if err != nil {
		return nil, fmt.Errorf("list primary: %w", err)
	}
	defer rows.Close()

	var out []domain.AuctionRecord
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanAuction(s scanner) (domain.AuctionRecord, error) {
	var (
		a                                                 domain.AuctionRecord
		title, desc, full, category, city, province       sql.NullString
		address, court, caseNumber, sourceURL             sql.NullString
		propertyType, status                              string
		lat, lon, surface, base, current, estimate, score sql.NullFloat64
		rooms, baths, floor                               sql.NullInt64
		auctionDate                                       sql.NullTime
		occupied                                          sql.NullBool
		breakdown, media, enrichment, raw                 []byte
	)
	err := s.Scan(
		&a.ExternalID, &title, &desc, &full, &category, &propertyType,
		&city, &province, &address, &lat, &lon,
		&surface, &rooms, &baths, &floor,
		&base, &current, &estimate, &auctionDate, &a.AuctionRound,
		&court, &caseNumber, &status, &occupied,
		&score, &breakdown, &media, &enrichment, &sourceURL, &raw, &a.ScrapedAt,
	)
	if err != nil {
		return domain.AuctionRecord{}, fmt.Errorf("scan auction: %w", err)
	}

	a.Title, a.Description, a.FullText, a.Category = title.String, desc.String, full.String, category.String
	a.City, a.Province, a.Address = city.String, province.String, address.String
	a.Court, a.CaseNumber, a.SourceURL = court.String, caseNumber.String, sourceURL.String
	a.PropertyType = domain.PropertyType(propertyType)
	a.Status = domain.AuctionStatus(status)
	a.ScrapedAt = a.ScrapedAt.UTC()

	if lat.Valid && lon.Valid {
		a.Coords = &domain.Coords{Lat: lat.Float64, Lon: lon.Float64}
	}
	a.SurfaceSqm = nullF(surface)
	a.BasePrice = nullF(base)
	a.CurrentPrice = nullF(current)
	a.EstimatedValue = nullF(estimate)
	a.Score = nullF(score)
	a.Rooms = nullI(rooms)
	a.Bathrooms = nullI(baths)
	a.Floor = nullI(floor)
	if auctionDate.Valid {
		t := auctionDate.Time.UTC()
		a.AuctionDate = &t
	}
	if occupied.Valid {
		v := occupied.Bool
		a.IsOccupied = &v
	}

	if len(breakdown) > 0 {
		var b domain.ScoreBreakdown
		if err := json.Unmarshal(breakdown, &b); err != nil {
			return domain.AuctionRecord{}, fmt.Errorf("decode score breakdown of %s: %w", a.ExternalID, err)
		}
		a.Breakdown = &b
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &a.Media); err != nil {
			return domain.AuctionRecord{}, fmt.Errorf("decode media of %s: %w", a.ExternalID, err)
		}
	}
	if len(enrichment) > 0 {
		var e domain.Enrichment
		if err := json.Unmarshal(enrichment, &e); err != nil {
			return domain.AuctionRecord{}, fmt.Errorf("decode enrichment of %s: %w", a.ExternalID, err)
		}
		a.Enrichment = &e
	}
	if len(raw) > 0 {
		a.Raw = append(json.RawMessage(nil), raw...)
	}
	return a, nil
}

func nullF(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullI(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func (r *Repo) RecordRun(ctx context.Context, rep domain.RunReport) error {
	var completed any
	if !rep.CompletedAt.IsZero() {
		completed = rep.CompletedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, insertRunSQL,
		rep.ID,
		rep.Source,
		rep.StartedAt.UTC(),
		completed,
		rep.Pages,
		rep.Fetched,
		rep.Matched,
		rep.Published,
		rep.Failed,
		string(rep.Reason),
		valStr(rep.Error),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rep.ID, err)
	}
	return nil
}

// ListRuns returns the most recent run reports, newest first.
func (r *Repo) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RunReport, 0, limit)
	for rows.Next() {
		var (
			rep       domain.RunReport
			completed sql.NullTime
			reason    string
			msg       sql.NullString
		)
		if err := rows.Scan(&rep.ID, &rep.Source, &rep.StartedAt, &completed, &rep.Pages,
			&rep.Fetched, &rep.Matched, &rep.Published, &rep.Failed, &reason, &msg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rep.StartedAt = rep.StartedAt.UTC()
		if completed.Valid {
			rep.CompletedAt = completed.Time.UTC()
		}
		rep.Reason = domain.TerminationReason(reason)
		rep.Error = msg.String
		out = append(out, rep)
	}
	return out, rows.Err()
}
