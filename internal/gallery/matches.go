package gallery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/selfie-search/internal/database"
	"github.com/kozaktomas/selfie-search/internal/facematch"
	"github.com/kozaktomas/selfie-search/internal/media"
)

// Match is one displayable photo.
type Match struct {
	MediaID string `json:"media_id"`
	AlbumID string `json:"album_id,omitempty"`
	media.URLs
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Score  float64        `json:"score"`
	Tier   facematch.Tier `json:"tier"`
}

// buildResponse loads the matched photos and keeps those that can be shown:
// known to the database, in the requested album and scoring at least the
// display threshold. Engine order is preserved.
func (s *Service) buildResponse(ctx context.Context, result *facematch.Result, albumID string) (*SearchResponse, error) {
	resp := &SearchResponse{
		Tier1:      []Match{},
		Tier2:      []Match{},
		Cycles:     result.Cycles,
		RoundTrips: result.RoundTrips,
	}
	if result.Total() == 0 {
		return resp, nil
	}

	ids := make([]string, 0, result.Total())
	for _, m := range result.Tier1 {
		ids = append(ids, m.MediaID)
	}
	for _, m := range result.Tier2 {
		ids = append(ids, m.MediaID)
	}

	items, err := s.deps.Media.GetMediaByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load media: %w", err)
	}
	byID := make(map[string]database.Media, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	resp.Tier1, err = s.toMatches(ctx, result.Tier1, byID, albumID)
	if err != nil {
		return nil, err
	}
	resp.Tier2, err = s.toMatches(ctx, result.Tier2, byID, albumID)
	if err != nil {
		return nil, err
	}
	resp.TotalMatches = len(resp.Tier1) + len(resp.Tier2)
	return resp, nil
}

func (s *Service) toMatches(
	ctx context.Context, matches []facematch.FaceMatch, byID map[string]database.Media, albumID string,
) ([]Match, error) {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score < s.params.DisplayThreshold {
			continue
		}
		item, ok := byID[m.MediaID]
		if !ok {
			s.logger.Debug("matched media not found", zap.String("media_id", m.MediaID))
			continue
		}
		if albumID != "" && item.AlbumID != albumID {
			continue
		}

		urls, err := s.deps.URLs.Resolve(ctx, item.R2Key, item.PreviewR2Key)
		if err != nil {
			return nil, fmt.Errorf("resolve media urls: %w", err)
		}
		out = append(out, Match{
			MediaID: item.ID,
			AlbumID: item.AlbumID,
			URLs:    urls,
			Width:   item.Width,
			Height:  item.Height,
			Score:   roundScore(m.Score),
			Tier:    m.Tier,
		})
	}
	return out, nil
}
