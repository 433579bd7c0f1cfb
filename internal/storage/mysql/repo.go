package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"unihaven/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// isDuplicate reports a unique-key violation (MySQL error 1062). The
// constraints themselves live in the schema; the repo only translates.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// ---- listings ----

func listingArgs(l domain.Listing) ([]any, error) {
	unis, err := json.Marshal(l.EligibleUniversities)
	if err != nil {
		return nil, err
	}
	var lat, lon *float64
	if l.Coords != nil {
		lat, lon = &l.Coords.Lat, &l.Coords.Lon
	}
	return []any{
		l.Title, l.Description, string(l.PropertyType), l.Price, l.Beds, l.Bedrooms,
		l.Address, l.Flat, l.Floor, l.Room, valF64(lat), valF64(lon), l.GeoAddress, l.DedupeKey(),
		domain.DateOnly(l.AvailableFrom), domain.DateOnly(l.AvailableTo), string(unis), l.OwnerID,
	}, nil
}

func (r *Repo) CreateListing(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	args, err := listingArgs(l)
	if err != nil {
		return domain.Listing{}, err
	}
	res, err := r.db.ExecContext(ctx, insertListingSQL, args...)
	if err != nil {
		if isDuplicate(err) {
			return domain.Listing{}, domain.ErrDuplicate
		}
		return domain.Listing{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Listing{}, err
	}
	return r.GetListing(ctx, id)
}

func (r *Repo) UpdateListing(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	args, err := listingArgs(l)
	if err != nil {
		return domain.Listing{}, err
	}
	args = append(args, l.ID)
	res, err := r.db.ExecContext(ctx, updateListingSQL, args...)
	if err != nil {
		if isDuplicate(err) {
			return domain.Listing{}, domain.ErrDuplicate
		}
		return domain.Listing{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either missing or a no-op update; disambiguate with a read.
		if _, gerr := r.GetListing(ctx, l.ID); gerr != nil {
			return domain.Listing{}, gerr
		}
	}
	return r.GetListing(ctx, l.ID)
}

func (r *Repo) DeleteListing(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := scanListingFrom(tx.QueryRowContext(ctx, getListingForUpdateSQL, id)); err != nil {
		return err
	}
	var active int
	today := domain.DateOnly(time.Now().UTC())
	if err := tx.QueryRowContext(ctx, countActiveSQL, id, today).Scan(&active); err != nil {
		return err
	}
	if active > 0 {
		return domain.ErrListingBusy
	}
	if _, err := tx.ExecContext(ctx, deleteListingSQL, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repo) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	return scanListingFrom(r.db.QueryRowContext(ctx, getListingSQL, id))
}

func (r *Repo) ListVisible(ctx context.Context, university string) ([]domain.Listing, error) {
	return r.queryListings(ctx, listVisibleSQL, university)
}

func (r *Repo) ListUnresolved(ctx context.Context) ([]domain.Listing, error) {
	return r.queryListings(ctx, listUnresolvedSQL)
}

func (r *Repo) SetListingLocation(ctx context.Context, id int64, c domain.Coords, geoAddress string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	l, err := scanListingFrom(tx.QueryRowContext(ctx, getListingForUpdateSQL, id))
	if err != nil {
		return err
	}
	l.Coords = &c
	l.GeoAddress = geoAddress
	if _, err := tx.ExecContext(ctx, setLocationSQL, c.Lat, c.Lon, geoAddress, l.DedupeKey(), id); err != nil {
		if isDuplicate(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	return tx.Commit()
}

func (r *Repo) queryListings(ctx context.Context, query string, args ...any) ([]domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListingFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dst ...any) error }

func scanListingFrom(s rowScanner) (domain.Listing, error) {
	var (
		l        domain.Listing
		pt       string
		price    decimal.Decimal
		lat, lon sql.NullFloat64
		geoAddr  sql.NullString
		desc     sql.NullString
		unisJSON []byte
		rating   float64
	)
	err := s.Scan(
		&l.ID, &l.Title, &desc, &pt, &price, &l.Beds, &l.Bedrooms,
		&l.Address, &l.Flat, &l.Floor, &l.Room, &lat, &lon, &geoAddr,
		&l.AvailableFrom, &l.AvailableTo, &unisJSON, &l.OwnerID, &rating,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, err
	}
	l.Description = desc.String
	l.PropertyType = domain.PropertyType(pt)
	l.Price = price
	if lat.Valid && lon.Valid {
		l.Coords = &domain.Coords{Lat: lat.Float64, Lon: lon.Float64}
	}
	l.GeoAddress = geoAddr.String
	l.Rating = rating
	if err := json.Unmarshal(unisJSON, &l.EligibleUniversities); err != nil {
		return domain.Listing{}, fmt.Errorf("decode universities for listing %d: %w", l.ID, err)
	}
	return l, nil
}

// ---- reservations ----

func (r *Repo) AdmitReservation(ctx context.Context, res domain.Reservation, today time.Time) (domain.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	// Row lock on the listing serializes concurrent admissions (and
	// cancellations) per listing; other listings admit in parallel.
	l, err := scanListingFrom(tx.QueryRowContext(ctx, getListingForUpdateSQL, res.ListingID))
	if err != nil {
		return domain.Reservation{}, err
	}

	today = domain.DateOnly(today)
	var active int
	if err := tx.QueryRowContext(ctx, countActiveSQL, res.ListingID, today).Scan(&active); err != nil {
		return domain.Reservation{}, err
	}
	if err := domain.CheckAdmission(l, active, res.University, res.StartDate, res.EndDate, today); err != nil {
		return domain.Reservation{}, err
	}

	out, err := tx.ExecContext(ctx, insertReservationSQL,
		res.UID, res.ListingID, res.StudentID, res.University,
		domain.DateOnly(res.StartDate), domain.DateOnly(res.EndDate))
	if err != nil {
		if isDuplicate(err) {
			return domain.Reservation{}, domain.ErrDuplicate
		}
		return domain.Reservation{}, err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return domain.Reservation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, err
	}

	res.ID = id
	res.Status = domain.StatusPending
	return res, nil
}

func (r *Repo) GetReservation(ctx context.Context, uid string) (domain.Reservation, error) {
	return scanReservationFrom(r.db.QueryRowContext(ctx, getReservationSQL, uid))
}

// CancelReservation takes the same listing row lock as AdmitReservation,
// so a cancellation and a competing admission on the listing serialize.
func (r *Repo) CancelReservation(ctx context.Context, uid string, today time.Time) (domain.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, err
	}
	defer tx.Rollback()

	res, err := scanReservationFrom(tx.QueryRowContext(ctx, getReservationSQL, uid))
	if err != nil {
		return domain.Reservation{}, err
	}
	if _, err := scanListingFrom(tx.QueryRowContext(ctx, getListingForUpdateSQL, res.ListingID)); err != nil {
		return domain.Reservation{}, err
	}

	// Re-read under the listing lock; the first read only located the
	// listing and may be stale against a concurrent cancel.
	res, err = scanReservationFrom(tx.QueryRowContext(ctx, getReservationForUpdateSQL, uid))
	if err != nil {
		return domain.Reservation{}, err
	}
	today = domain.DateOnly(today)
	derived := domain.DeriveStatus(res.Status, res.StartDate, res.EndDate, today)
	if derived.Terminal() {
		if derived != res.Status {
			if _, err := tx.ExecContext(ctx, updateReservationStatusSQL, string(derived), uid); err != nil {
				return domain.Reservation{}, err
			}
			if err := tx.Commit(); err != nil {
				return domain.Reservation{}, err
			}
		}
		return domain.Reservation{}, domain.ErrTerminalStatus
	}

	if _, err := tx.ExecContext(ctx, updateReservationStatusSQL, string(domain.StatusCancelled), uid); err != nil {
		return domain.Reservation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Reservation{}, err
	}
	res.Status = domain.StatusCancelled
	return res, nil
}

// UpdateReservationStatus is a best-effort write of a derived status; a
// row that reached a terminal status since the caller's read is left as
// is rather than overwritten.
func (r *Repo) UpdateReservationStatus(ctx context.Context, uid string, st domain.ReservationStatus) error {
	res, err := r.db.ExecContext(ctx, updateReservationStatusSQL, string(st), uid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Missing row is an error; an already-terminal row is a no-op.
		if _, gerr := r.GetReservation(ctx, uid); gerr != nil {
			return gerr
		}
	}
	return nil
}

func (r *Repo) ListReservationsByStudent(ctx context.Context, studentID string) ([]domain.Reservation, error) {
	return r.queryReservations(ctx, listReservationsByStudentSQL, studentID)
}

func (r *Repo) ListReservationsByUniversity(ctx context.Context, university string) ([]domain.Reservation, error) {
	return r.queryReservations(ctx, listReservationsByUniversitySQL, university)
}

func (r *Repo) CountActive(ctx context.Context, listingID int64) (int, error) {
	var n int
	today := domain.DateOnly(time.Now().UTC())
	err := r.db.QueryRowContext(ctx, countActiveSQL, listingID, today).Scan(&n)
	return n, err
}

func (r *Repo) queryReservations(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		rv, err := scanReservationFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func scanReservationFrom(s rowScanner) (domain.Reservation, error) {
	var (
		rv domain.Reservation
		st string
	)
	err := s.Scan(
		&rv.ID, &rv.UID, &rv.ListingID, &rv.StudentID, &rv.University,
		&rv.StartDate, &rv.EndDate, &st, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrNotFound
		}
		return domain.Reservation{}, err
	}
	rv.Status = domain.ReservationStatus(st)
	return rv, nil
}

// ---- ratings ----

func (r *Repo) SubmitRating(ctx context.Context, rt domain.Rating, today time.Time) (domain.Rating, domain.Listing, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}
	defer tx.Rollback()

	// Same per-listing row lock as admission; two raters of one listing
	// recompute the aggregate serially, no lost updates.
	l, err := scanListingFrom(tx.QueryRowContext(ctx, getListingForUpdateSQL, rt.ListingID))
	if err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}

	today = domain.DateOnly(today)
	var stayed bool
	if err := tx.QueryRowContext(ctx, hasCompletedStaySQL, rt.ListingID, rt.StudentID, today).Scan(&stayed); err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}
	if !stayed {
		return domain.Rating{}, domain.Listing{}, domain.ErrNoStay
	}

	out, err := tx.ExecContext(ctx, insertRatingSQL, rt.ListingID, rt.StudentID, rt.Value, rt.Comment)
	if err != nil {
		if isDuplicate(err) {
			return domain.Rating{}, domain.Listing{}, domain.ErrDuplicate
		}
		return domain.Rating{}, domain.Listing{}, err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}

	var avg float64
	if err := tx.QueryRowContext(ctx, avgRatingSQL, rt.ListingID).Scan(&avg); err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}
	if _, err := tx.ExecContext(ctx, updateListingRatingSQL, avg, rt.ListingID); err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Rating{}, domain.Listing{}, err
	}

	rt.ID = id
	l.Rating = avg
	return rt, l, nil
}

func (r *Repo) ListRatings(ctx context.Context, listingID int64) ([]domain.Rating, error) {
	if _, err := r.GetListing(ctx, listingID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, listRatingsSQL, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Rating
	for rows.Next() {
		var (
			rt      domain.Rating
			comment sql.NullString
		)
		if err := rows.Scan(&rt.ID, &rt.ListingID, &rt.StudentID, &rt.Value, &comment, &rt.CreatedAt); err != nil {
			return nil, err
		}
		rt.Comment = comment.String
		out = append(out, rt)
	}
	return out, rows.Err()
}
