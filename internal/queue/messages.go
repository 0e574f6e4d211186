package queue

import (
	"encoding/json"

	"github.com/google/uuid"
)

// MessageKind discriminates the three ingestion message shapes: bulk
// upload, update and delete (spec §4.E).
type MessageKind string

const (
	KindBulkUpload MessageKind = "bulk_upload"
	KindUpdate     MessageKind = "update"
	KindDelete     MessageKind = "delete"
)

// ChunkInput is one row of a BulkUpload/Update message, pre-normalization
// (spec §4.E step 1 runs HTML->text, timestamp parsing, tag
// normalization, location packing on these before persistence).
type ChunkInput struct {
	TrackingID       *string        `json:"tracking_id,omitempty"`
	Content          string         `json:"content,omitempty"`
	HTML             string         `json:"html,omitempty"`
	Link             string         `json:"link,omitempty"`
	TagSet           []string       `json:"tag_set,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	TimeStampRFC3339 string         `json:"time_stamp,omitempty"`
	Lat              *float64       `json:"lat,omitempty"`
	Lon              *float64       `json:"lon,omitempty"`
	NumValue         *float64       `json:"num_value,omitempty"`
	Weight           *float64       `json:"weight,omitempty"`
	ImageURLs        []string       `json:"image_urls,omitempty"`
	GroupTrackingIDs []string       `json:"group_tracking_ids,omitempty"`
	DistancePhrase   string         `json:"distance_phrase,omitempty"`
	DistanceFactor   float32        `json:"distance_factor,omitempty"`
	BoostPhrase      string         `json:"boost_phrase,omitempty"`
	BoostFactor      float32        `json:"boost_factor,omitempty"`
}

// IngestMessage is the durable envelope read from the ingestion queue
// (spec §4.E): a batch of new chunks, a single chunk update or a single
// chunk delete, carrying the retry bookkeeping described in §4.E/§7/P8.
type IngestMessage struct {
	Kind               MessageKind  `json:"kind"`
	DatasetID          string       `json:"dataset_id"`
	UpsertByTrackingID bool         `json:"upsert_by_tracking_id,omitempty"`
	Chunks             []ChunkInput `json:"chunks,omitempty"`

	// ChunkID names the target of an Update or Delete message; Update also
	// carries the replacement fields.
	ChunkID uuid.UUID  `json:"chunk_id,omitempty"`
	Update  ChunkInput `json:"update,omitempty"`

	AttemptNumber int `json:"attempt_number"`
}

func (m IngestMessage) Encode() (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func DecodeIngestMessage(raw string) (IngestMessage, error) {
	var m IngestMessage
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}

// FieldMapping declares how CSV/JSONL columns map onto chunk fields for one
// import (spec §4.F). Every field is the source column/key name; an empty
// string means that chunk field is left unset.
type FieldMapping struct {
	Link             string `json:"link,omitempty"`
	TagSet           string `json:"tag_set,omitempty"`
	NumValue         string `json:"num_value,omitempty"`
	TrackingID       string `json:"tracking_id,omitempty"`
	GroupTrackingIDs string `json:"group_tracking_ids,omitempty"`
	TimeStamp        string `json:"time_stamp,omitempty"`
	Lat              string `json:"lat,omitempty"`
	Lon              string `json:"lon,omitempty"`
	ImageURLs        string `json:"image_urls,omitempty"`
	Weight           string `json:"weight,omitempty"`
	BoostPhrase      string `json:"boost_phrase,omitempty"`
}

// CSVImportMessage drives the CSV/JSONL importer (spec §4.F): one message
// per uploaded object, re-enqueued straight away, with no delay added,
// while the object has not finished uploading yet (up to the wall-clock
// cap measured from FirstEnqueuedUnix).
type CSVImportMessage struct {
	DatasetID       string       `json:"dataset_id"`
	ObjectKey       string       `json:"object_key"`
	FileName        string       `json:"file_name"`
	Mapping         FieldMapping `json:"mapping"`
	GroupTrackingID string       `json:"group_tracking_id,omitempty"`

	// FirstEnqueuedUnix records when this import was first queued, so the
	// "object not yet present" retry loop can enforce its wall-clock cap
	// independently of AttemptNumber (spec §4.F: "hard cap ~8600s before
	// dead-lettering").
	FirstEnqueuedUnix int64 `json:"first_enqueued_unix"`
	AttemptNumber     int   `json:"attempt_number"`
}

func (m CSVImportMessage) Encode() (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func DecodeCSVImportMessage(raw string) (CSVImportMessage, error) {
	var m CSVImportMessage
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}

// DatasetDeleteMessage drives the dataset lifecycle worker (spec §4.K).
type DatasetDeleteMessage struct {
	DatasetID string `json:"dataset_id"`
}

func (m DatasetDeleteMessage) Encode() (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func DecodeDatasetDeleteMessage(raw string) (DatasetDeleteMessage, error) {
	var m DatasetDeleteMessage
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}

// BulkChunksDeletedEvent reports one clear batch the dataset lifecycle
// worker finished (spec §4.K, §8 example: "12,345 chunks in batches of
// 5,000 -> 3 BulkChunksDeleted events with counts 5000, 5000, 2345").
type BulkChunksDeletedEvent struct {
	DatasetID string `json:"dataset_id"`
	Count     int    `json:"count"`
}

func (m BulkChunksDeletedEvent) Encode() (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func DecodeBulkChunksDeletedEvent(raw string) (BulkChunksDeletedEvent, error) {
	var m BulkChunksDeletedEvent
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}

// GroupUpdateMessage drives the group/tag propagator (spec §4.J).
type GroupUpdateMessage struct {
	DatasetID     string    `json:"dataset_id"`
	GroupID       uuid.UUID `json:"group_id"`
	PrevTagSet    []string  `json:"prev_tag_set"`
	NewTagSet     []string  `json:"new_tag_set"`
	AfterChunkID  uuid.UUID `json:"after_chunk_id,omitempty"`
	AttemptNumber int       `json:"attempt_number"`
}

func (m GroupUpdateMessage) Encode() (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func DecodeGroupUpdateMessage(raw string) (GroupUpdateMessage, error) {
	var m GroupUpdateMessage
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}
