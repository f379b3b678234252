package models

import "time"

// DeliveryChannel is a side-effect-emitting channel subject to windowed
// dedup.
type DeliveryChannel string

const (
	ChannelNote               DeliveryChannel = "note"
	ChannelEmailQualified     DeliveryChannel = "email_qualified"
	ChannelEmailXMLUpload     DeliveryChannel = "email_xml_upload"
	ChannelEmailZeroJobAlert  DeliveryChannel = "email_zero_job_alert"
	ChannelEmailReferenceRefresh DeliveryChannel = "email_reference_refresh"
)

// DeliveryStatus is the outcome recorded for a delivery attempt.
type DeliveryStatus string

const (
	DeliveryStatusSent         DeliveryStatus = "sent"
	DeliveryStatusDedupSkipped DeliveryStatus = "dedup_skipped"
	DeliveryStatusFailed       DeliveryStatus = "failed"
)

// DeliveryLedgerEntry is a keyed log of side-effect emissions, the
// backing store for the Deduplication Ledger (C11).
type DeliveryLedgerEntry struct {
	ID         string          `json:"id" boltholdKey:"ID"`
	Channel    DeliveryChannel `json:"channel" boltholdIndex:"Channel"`
	Key        string          `json:"key_tuple"`
	SentAt     time.Time       `json:"sent_at"`
	ExternalID string          `json:"external_id_or_null"`
	Status     DeliveryStatus  `json:"status"`
}
