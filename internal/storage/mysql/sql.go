package mysql

// 31 placeholders, in auctionColumns order.
const upsertAuctionSQL = `
INSERT INTO auctions
  (external_id, title, description, full_text, category, property_type,
   city, province, address, lat, lon,
   surface_sqm, rooms, bathrooms, floor,
   base_price, current_price, estimated_value, auction_date, auction_round,
   court, case_number, status, is_occupied,
   score, score_breakdown, media, enrichment, source_url, raw, scraped_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  title           = VALUES(title),
  description     = VALUES(description),
  full_text       = VALUES(full_text),
  category        = VALUES(category),
  property_type   = VALUES(property_type),
  city            = VALUES(city),
  province        = VALUES(province),
  address         = VALUES(address),
  lat             = COALESCE(VALUES(lat), auctions.lat),
  lon             = COALESCE(VALUES(lon), auctions.lon),
  surface_sqm     = VALUES(surface_sqm),
  rooms           = VALUES(rooms),
  bathrooms       = VALUES(bathrooms),
  floor           = VALUES(floor),
  base_price      = VALUES(base_price),
  current_price   = VALUES(current_price),
  estimated_value = VALUES(estimated_value),
  auction_date    = VALUES(auction_date),
  auction_round   = VALUES(auction_round),
  court           = VALUES(court),
  case_number     = VALUES(case_number),
  status          = VALUES(status),
  is_occupied     = VALUES(is_occupied),
  score           = VALUES(score),
  score_breakdown = VALUES(score_breakdown),
  media           = COALESCE(VALUES(media), auctions.media),
  enrichment      = COALESCE(VALUES(enrichment), auctions.enrichment),
  source_url      = VALUES(source_url),
  raw             = COALESCE(VALUES(raw), auctions.raw),
  scraped_at      = VALUES(scraped_at),
  updated_at      = CURRENT_TIMESTAMP
`

const auctionColumns = `external_id, title, description, full_text, category, property_type,
  city, province, address, lat, lon,
  surface_sqm, rooms, bathrooms, floor,
  base_price, current_price, estimated_value, auction_date, auction_round,
  court, case_number, status, is_occupied,
  score, score_breakdown, media, enrichment, source_url, raw, scraped_at`

// Primary set for reconciliation: every auction still open for bidding.
const listPrimarySQL = `
SELECT ` + auctionColumns + `
FROM auctions
WHERE status = 'Active'
ORDER BY auction_date IS NULL, auction_date, external_id
`

const insertRunSQL = `
INSERT INTO scraping_logs
  (id, source, started_at, completed_at, pages, items_fetched, items_matched, items_published, items_failed, reason, error_message)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  completed_at    = VALUES(completed_at),
  pages           = VALUES(pages),
  items_fetched   = VALUES(items_fetched),
  items_matched   = VALUES(items_matched),
  items_published = VALUES(items_published),
  items_failed    = VALUES(items_failed),
  reason          = VALUES(reason),
  error_message   = VALUES(error_message)
`

const listRunsSQL = `
SELECT id, source, started_at, completed_at, pages, items_fetched, items_matched, items_published, items_failed, reason, error_message
FROM scraping_logs
ORDER BY started_at DESC, id
LIMIT ?
`
