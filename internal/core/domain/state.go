package domain

// IDSet is the de-duplication set of video IDs already seen.
type IDSet struct {
	ids map[string]struct{}
}

// NewIDSet creates a set seeded with ids.
func NewIDSet(ids ...string) *IDSet {
	s := &IDSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id. Empty ids are ignored.
func (s *IDSet) Add(id string) {
	if id == "" {
		return
	}
	s.ids[id] = struct{}{}
}

// Has reports whether id was seen.
func (s *IDSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of ids.
func (s *IDSet) Len() int {
	return len(s.ids)
}

// Merge adds every id of other.
func (s *IDSet) Merge(other *IDSet) {
	if other == nil {
		return
	}
	for id := range other.ids {
		s.ids[id] = struct{}{}
	}
}

// RunState holds the tracking collections of a single run.
// It is owned by the orchestrator and passed explicitly to each component call.
type RunState struct {
	Seen             *IDSet
	FailedQueries    []Failure
	FailedDownloads  []Failure
	FailedProcessing []Failure
	Processed        []ProcessedVideo
}

// NewRunState creates an empty state around a seen set.
func NewRunState(seen *IDSet) *RunState {
	if seen == nil {
		seen = NewIDSet()
	}
	return &RunState{Seen: seen}
}

// RecordQueryFailure appends a search-level failure.
func (s *RunState) RecordQueryFailure(query string, err error) {
	s.FailedQueries = append(s.FailedQueries, Failure{Query: query, Error: err.Error()})
}

// RecordDetailsFailure appends a failure to fetch statistics for a video.
func (s *RunState) RecordDetailsFailure(videoID string, err error) {
	s.FailedQueries = append(s.FailedQueries, Failure{VideoID: videoID, Error: err.Error()})
}

// RecordDownloadFailure appends a download failure.
func (s *RunState) RecordDownloadFailure(rec VideoRecord, err error) {
	s.FailedDownloads = append(s.FailedDownloads, Failure{VideoID: rec.VideoID, VideoURL: rec.URL, Error: err.Error()})
}

// RecordProcessingFailure appends a frame processing failure.
func (s *RunState) RecordProcessingFailure(videoID string, err error) {
	s.FailedProcessing = append(s.FailedProcessing, Failure{VideoID: videoID, Error: err.Error()})
}
