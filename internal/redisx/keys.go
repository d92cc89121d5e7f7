package redisx

import "time"

const (
	// Order status cache: order_status:{order_id} -> {"id":..,"status":..,"pix_payment_status":..}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Shipping quotes: quote:{store_user_id}:{sha256 of normalized request}
	KeyQuote = "quote:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
