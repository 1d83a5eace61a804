package lookup

import (
	"context"
	"encoding/json"
)

// readCache fetches and decodes a previously cached response. A miss or a
// decode failure (never expected against entries this package wrote
// itself, but cheap to guard) is reported as ok=false so the caller falls
// through to the hot tier.
func (s *Service) readCache(ctx context.Context, key string) (Response, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil || raw == nil {
		return Response{}, false
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, false
	}
	resp.Cache = CacheInfo{Hit: true, MaxAgeS: uint64(s.cacheTTL.Seconds())}
	return resp, true
}

// writeCache stores a freshly computed response. Cache writes are best
// effort: a failure to populate tier 1 never fails the lookup that
// computed the answer.
func (s *Service) writeCache(ctx context.Context, key string, resp Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, raw, s.cacheTTL)
}
