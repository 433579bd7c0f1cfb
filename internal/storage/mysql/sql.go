package mysql

const listingCols = `
  id, title, description, property_type, price, beds, bedrooms,
  address, flat, floor, room, lat, lon, geo_address,
  available_from, available_to, universities, owner_id, rating,
  created_at, updated_at`

const insertListingSQL = `
INSERT INTO listings
  (title, description, property_type, price, beds, bedrooms,
   address, flat, floor, room, lat, lon, geo_address, dedupe_key,
   available_from, available_to, universities, owner_id)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateListingSQL = `
UPDATE listings SET
  title = ?, description = ?, property_type = ?, price = ?, beds = ?,
  bedrooms = ?, address = ?, flat = ?, floor = ?, room = ?,
  lat = ?, lon = ?, geo_address = ?, dedupe_key = ?,
  available_from = ?, available_to = ?, universities = ?
WHERE id = ?
`

const getListingSQL = `SELECT` + listingCols + ` FROM listings WHERE id = ?`

const getListingForUpdateSQL = getListingSQL + ` FOR UPDATE`

// JSON_QUOTE keeps the membership test exact: "HKU" must not match "HKUST".
const listVisibleSQL = `
SELECT` + listingCols + `
FROM listings
WHERE JSON_CONTAINS(universities, JSON_QUOTE(?))
ORDER BY id
`

const listUnresolvedSQL = `
SELECT` + listingCols + `
FROM listings
WHERE lat IS NULL OR lon IS NULL
ORDER BY id
`

const setLocationSQL = `
UPDATE listings SET lat = ?, lon = ?, geo_address = ?, dedupe_key = ?
WHERE id = ?
`

const deleteListingSQL = `DELETE FROM listings WHERE id = ?`

// Active means pending/confirmed whose derived status is still active:
// a stale "pending" row whose end date has passed is completed by the
// lazy transition rule and must not hold a bed.
const countActiveSQL = `
SELECT COUNT(*) FROM reservations
WHERE listing_id = ? AND status IN ('pending','confirmed') AND end_date >= ?
`

const insertReservationSQL = `
INSERT INTO reservations
  (uid, listing_id, student_id, university, start_date, end_date, status)
VALUES
  (?, ?, ?, ?, ?, ?, 'pending')
`

const reservationCols = `
  id, uid, listing_id, student_id, university,
  start_date, end_date, status, created_at, updated_at`

const getReservationSQL = `SELECT` + reservationCols + ` FROM reservations WHERE uid = ?`

const getReservationForUpdateSQL = getReservationSQL + ` FOR UPDATE`

// Terminal rows are immutable here: a derived-status write racing a
// cancellation must not resurrect the cancelled row.
const updateReservationStatusSQL = `
UPDATE reservations SET status = ?
WHERE uid = ? AND status NOT IN ('cancelled','completed')
`

const listReservationsByStudentSQL = `
SELECT` + reservationCols + `
FROM reservations
WHERE student_id = ?
ORDER BY id
`

const listReservationsByUniversitySQL = `
SELECT r.id, r.uid, r.listing_id, r.student_id, r.university,
       r.start_date, r.end_date, r.status, r.created_at, r.updated_at
FROM reservations r
JOIN listings l ON l.id = r.listing_id
WHERE JSON_CONTAINS(l.universities, JSON_QUOTE(?))
ORDER BY r.id
`

const hasCompletedStaySQL = `
SELECT EXISTS(
  SELECT 1 FROM reservations
  WHERE listing_id = ? AND student_id = ?
    AND (status = 'completed'
         OR (status IN ('pending','confirmed') AND end_date < ?))
)
`

const insertRatingSQL = `
INSERT INTO ratings (listing_id, student_id, value, comment)
VALUES (?, ?, ?, ?)
`

const avgRatingSQL = `SELECT ROUND(AVG(value), 2) FROM ratings WHERE listing_id = ?`

const updateListingRatingSQL = `UPDATE listings SET rating = ? WHERE id = ?`

const listRatingsSQL = `
SELECT id, listing_id, student_id, value, comment, created_at
FROM ratings
WHERE listing_id = ?
ORDER BY id
`
