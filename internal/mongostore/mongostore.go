// Package mongostore is the MongoDB implementation of model.Store.
//
// Identities are ObjectIDs stored in _id and exposed as hex strings. Events
// keep the search result id as a plain string, so removing a search result
// never touches its events.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TobiSchelling/eventminer/internal/model"
)

const (
	searchResultsCollection = "search_results"
	eventsCollection        = "events"
	defaultSearchLimit      = 20
	connectTimeout          = 10 * time.Second
)

type searchResultDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Query      string             `bson:"query"`
	SearchDate time.Time          `bson:"search_date"`
	Provider   string             `bson:"provider"`
	Params     bson.M             `bson:"params"`
	Results    []model.Hit        `bson:"results"`
	Summary    *string            `bson:"summary,omitempty"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

type eventDoc struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	EventDate          time.Time          `bson:"event_date"`
	Title              string             `bson:"title"`
	Description        string             `bson:"description"`
	SourceURL          string             `bson:"source_url"`
	SourceTitle        *string            `bson:"source_title"`
	SearchResultID     *string            `bson:"search_result_id"`
	Provider           string             `bson:"provider"`
	RelevanceScore     *int               `bson:"relevance_score"`
	RelevanceReasoning *string            `bson:"relevance_reasoning"`
	Rank               *int               `bson:"rank"`
	CreatedAt          time.Time          `bson:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at"`
}

// Store is a MongoDB-backed model.Store. It is safe for concurrent use.
type Store struct {
	client        *mongo.Client
	searchResults *mongo.Collection
	events        *mongo.Collection
	log           *slog.Logger
}

var _ model.Store = (*Store)(nil)

// Open connects to uri, selects database and ensures the indexes exist.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:        client,
		searchResults: db.Collection(searchResultsCollection),
		events:        db.Collection(eventsCollection),
		log:           logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Debug("connected to mongodb", "database", database)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	asc := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
	}
	srIndexes := []mongo.IndexModel{
		asc("search_date"),
		asc("query"),
		asc("provider"),
		{Keys: bson.D{{Key: "query", Value: "text"}}},
	}
	if _, err := s.searchResults.Indexes().CreateMany(ctx, srIndexes); err != nil {
		return fmt.Errorf("creating search result indexes: %w", err)
	}

	eventIndexes := []mongo.IndexModel{
		asc("event_date"),
		asc("search_result_id"),
		asc("provider"),
		asc("rank"),
		asc("relevance_score"),
		{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "description", Value: "text"}}},
	}
	if _, err := s.events.Indexes().CreateMany(ctx, eventIndexes); err != nil {
		return fmt.Errorf("creating event indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// SaveSearchResult inserts sr and returns its hex id. sr is not modified.
func (s *Store) SaveSearchResult(ctx context.Context, sr *model.SearchResult) (string, error) {
	id, err := newOrParseID(sr.ID)
	if err != nil {
		return "", err
	}
	created, updated := timestamps(sr.CreatedAt, sr.UpdatedAt)
	doc := searchResultDoc{
		ID:         id,
		Query:      sr.Query,
		SearchDate: sr.SearchDate.UTC(),
		Provider:   string(sr.Provider),
		Params:     bson.M(sr.Params),
		Results:    sr.Results,
		Summary:    sr.Summary,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
	if doc.Params == nil {
		doc.Params = bson.M{}
	}
	if doc.Results == nil {
		doc.Results = []model.Hit{}
	}
	if _, err := s.searchResults.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("inserting search result: %w", err)
	}
	return id.Hex(), nil
}

// GetSearchResult returns the search result with the given id, or
// model.ErrNotFound.
func (s *Store) GetSearchResult(ctx context.Context, id string) (*model.SearchResult, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("search result %s: %w", id, model.ErrNotFound)
	}
	var doc searchResultDoc
	err = s.searchResults.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("search result %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding search result %s: %w", id, err)
	}
	return doc.toModel(), nil
}

// GetSearchResultsByQueryAndDate returns results searched on date's calendar
// day whose query contains query, ignoring case.
func (s *Store) GetSearchResultsByQueryAndDate(ctx context.Context, query string, date time.Time) ([]model.SearchResult, error) {
	start, end := model.DayWindow(date)
	filter := bson.M{
		"search_date": bson.M{"$gte": start.UTC(), "$lt": end.UTC()},
		"query":       primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"},
	}
	cur, err := s.searchResults.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("querying search results: %w", err)
	}
	var docs []searchResultDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}
	results := make([]model.SearchResult, 0, len(docs))
	for i := range docs {
		results = append(results, *docs[i].toModel())
	}
	return results, nil
}

// SaveEvent validates and inserts e, returning its hex id.
func (s *Store) SaveEvent(ctx context.Context, e *model.Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	id, err := newOrParseID(e.ID)
	if err != nil {
		return "", err
	}
	doc := fromEvent(e, id)
	doc.CreatedAt, doc.UpdatedAt = timestamps(e.CreatedAt, e.UpdatedAt)
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return id.Hex(), nil
}

// UpdateEvent replaces the stored document with e.
func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		return model.ErrMissingID
	}
	if err := e.Validate(); err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(e.ID)
	if err != nil {
		return fmt.Errorf("event %s: %w", e.ID, model.ErrNotFound)
	}
	doc := fromEvent(e, oid)
	doc.CreatedAt = e.CreatedAt.UTC()
	doc.UpdatedAt = now()

	res, err := s.events.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return fmt.Errorf("updating event %s: %w", e.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("event %s: %w", e.ID, model.ErrNotFound)
	}
	return nil
}

// GetEvent returns the event with the given id, or model.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	var doc eventDoc
	err = s.events.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding event %s: %w", id, err)
	}
	e := doc.toModel()
	return &e, nil
}

// GetEventsByDate returns the events dated within date's calendar day.
// MongoDB sorts null before numbers, so rank order is applied client-side.
func (s *Store) GetEventsByDate(ctx context.Context, date time.Time, sortedByRank bool) ([]model.Event, error) {
	start, end := model.DayWindow(date)
	filter := bson.M{"event_date": bson.M{"$gte": start.UTC(), "$lt": end.UTC()}}

	sort := bson.D{{Key: "relevance_score", Value: -1}, {Key: "_id", Value: 1}}
	if sortedByRank {
		sort = bson.D{{Key: "_id", Value: 1}}
	}
	events, err := s.findEvents(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	if sortedByRank {
		model.SortByRank(events)
	}
	return events, nil
}

// GetEventsBySearchResult returns the events derived from a search result in
// insertion order.
func (s *Store) GetEventsBySearchResult(ctx context.Context, searchResultID string) ([]model.Event, error) {
	return s.findEvents(ctx,
		bson.M{"search_result_id": searchResultID},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
}

// SearchEvents runs a $text search over titles and descriptions, best
// matches first.
func (s *Store) SearchEvents(ctx context.Context, text string, limit int) ([]model.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []model.Event{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	score := bson.M{"$meta": "textScore"}
	opts := options.Find().
		SetProjection(bson.M{"score": score}).
		SetSort(bson.D{{Key: "score", Value: score}}).
		SetLimit(int64(limit))
	return s.findEvents(ctx, bson.M{"$text": bson.M{"$search": text}}, opts)
}

// Stats returns document counts.
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	n, err := s.searchResults.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("counting search results: %w", err)
	}
	st.SearchResults = int(n)

	if n, err = s.events.CountDocuments(ctx, bson.D{}); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	st.Events = int(n)

	if n, err = s.events.CountDocuments(ctx, bson.M{"rank": bson.M{"$type": "number"}}); err != nil {
		return nil, fmt.Errorf("counting ranked events: %w", err)
	}
	st.RankedEvents = int(n)

	days, err := s.events.Distinct(ctx, "event_date", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("counting event days: %w", err)
	}
	st.DaysWithEvents = len(days)
	return &st, nil
}

func (s *Store) findEvents(ctx context.Context, filter any, opts *options.FindOptions) ([]model.Event, error) {
	cur, err := s.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	events := make([]model.Event, 0, len(docs))
	for i := range docs {
		events = append(events, docs[i].toModel())
	}
	return events, nil
}

func fromEvent(e *model.Event, id primitive.ObjectID) eventDoc {
	return eventDoc{
		ID:                 id,
		EventDate:          e.EventDate.UTC(),
		Title:              e.Title,
		Description:        e.Description,
		SourceURL:          e.SourceURL,
		SourceTitle:        e.SourceTitle,
		SearchResultID:     e.SearchResultID,
		Provider:           string(e.Provider),
		RelevanceScore:     e.RelevanceScore,
		RelevanceReasoning: e.RelevanceReasoning,
		Rank:               e.Rank,
	}
}

func (d *eventDoc) toModel() model.Event {
	return model.Event{
		ID:                 d.ID.Hex(),
		EventDate:          d.EventDate.In(time.Local),
		Title:              d.Title,
		Description:        d.Description,
		SourceURL:          d.SourceURL,
		SourceTitle:        d.SourceTitle,
		SearchResultID:     d.SearchResultID,
		Provider:           model.Provider(d.Provider),
		RelevanceScore:     d.RelevanceScore,
		RelevanceReasoning: d.RelevanceReasoning,
		Rank:               d.Rank,
		CreatedAt:          d.CreatedAt.In(time.Local),
		UpdatedAt:          d.UpdatedAt.In(time.Local),
	}
}

func (d *searchResultDoc) toModel() *model.SearchResult {
	results := d.Results
	if results == nil {
		results = []model.Hit{}
	}
	return &model.SearchResult{
		ID:         d.ID.Hex(),
		Query:      d.Query,
		SearchDate: d.SearchDate.In(time.Local),
		Provider:   model.Provider(d.Provider),
		Params:     map[string]any(d.Params),
		Results:    results,
		Summary:    d.Summary,
		CreatedAt:  d.CreatedAt.In(time.Local),
		UpdatedAt:  d.UpdatedAt.In(time.Local),
	}
}

func newOrParseID(id string) (primitive.ObjectID, error) {
	if id == "" {
		return primitive.NewObjectID(), nil
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid object id %q: %w", id, err)
	}
	return oid, nil
}

func timestamps(created, updated time.Time) (time.Time, time.Time) {
	if created.IsZero() {
		created = now()
	}
	if updated.IsZero() {
		updated = created
	}
	return created.UTC(), updated.UTC()
}

// BSON datetimes carry millisecond precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
