package twitchchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onnwee/stream-widgets/backend/model"
	"github.com/onnwee/stream-widgets/backend/telemetry"
)

// Shared-emote listings are large and change slowly, so they live in disk
// caches under the data dir. Trending rotates faster than the all-time top.
const (
	topCacheMaxAge      = 24 * time.Hour
	trendingCacheMaxAge = 6 * time.Hour

	bttvTopCacheFile      = "bttv_top_emotes.json"
	bttvTrendingCacheFile = "bttv_trending_emotes.json"
	sevenTVTopCacheFile   = "7tv_top_emotes.json"
	sevenTVTrendCacheFile = "7tv_trending_emotes.json"

	bttvPageSize    = 100
	sevenTVPageSize = 72
)

const sevenTVEmotesQuery = `query EmoteSearch($page: Int, $perPage: Int!, $sortBy: SortBy!) {
  emotes {
    search(query: null, tags: {tags: [], match: ANY}, sort: {sortBy: $sortBy, order: DESCENDING}, filters: {}, page: $page, perPage: $perPage) {
      items { id defaultName images { url mime size scale width frameCount } }
      totalCount
      pageCount
    }
  }
}`

// emoteSet holds the resolved third-party emotes for a channel. It is built
// once during client startup and read-only afterwards.
type emoteSet struct {
	global  map[string]model.Emote
	channel map[string]model.Emote
}

func newEmoteSet() *emoteSet {
	return &emoteSet{global: map[string]model.Emote{}, channel: map[string]model.Emote{}}
}

// lookup prefers the channel set over the global one.
func (s *emoteSet) lookup(code string) (model.Emote, bool) {
	if s == nil {
		return model.Emote{}, false
	}
	if e, ok := s.channel[code]; ok {
		return e, true
	}
	e, ok := s.global[code]
	return e, ok
}

func (s *emoteSet) size() int { return len(s.global) + len(s.channel) }

// emoteLoader fetches FFZ, BTTV and 7TV emotes for one channel. Base URLs
// are overridable in tests.
type emoteLoader struct {
	HTTPClient *http.Client
	DataDir    string
	Channel    string
	ChannelID  string

	FFZBase     string
	BTTVBase    string
	SevenTVBase string
	SevenTVGQL  string
}

func (l *emoteLoader) http() *http.Client {
	if l.HTTPClient != nil {
		return l.HTTPClient
	}
	return http.DefaultClient
}

func (l *emoteLoader) ffzBase() string {
	if l.FFZBase != "" {
		return l.FFZBase
	}
	return "https://api.frankerfacez.com/v1"
}

func (l *emoteLoader) bttvBase() string {
	if l.BTTVBase != "" {
		return l.BTTVBase
	}
	return "https://api.betterttv.net/3"
}

func (l *emoteLoader) sevenTVBase() string {
	if l.SevenTVBase != "" {
		return l.SevenTVBase
	}
	return "https://7tv.io/v3"
}

func (l *emoteLoader) sevenTVGQL() string {
	if l.SevenTVGQL != "" {
		return l.SevenTVGQL
	}
	return "https://api.7tv.app/v4/gql"
}

// load fetches every provider the config enables. Provider failures degrade
// to fewer emotes, never to an error.
func (l *emoteLoader) load(ctx context.Context, cfg model.ChatConfig) *emoteSet {
	set := newEmoteSet()
	if cfg.EnableFFZ {
		l.loadFFZ(ctx, set)
	}
	if cfg.EnableBTTV {
		l.loadBTTV(ctx, set)
	}
	if cfg.EnableSevenTV {
		l.loadSevenTV(ctx, set)
	}
	slog.Info("loaded third-party emotes", slog.Int("total", set.size()))
	return set
}

func (l *emoteLoader) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := l.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Disk cache helpers. Validity is judged purely by file mtime.

func (l *emoteLoader) cachePath(name string) string {
	return filepath.Join(l.DataDir, name)
}

func cacheValid(path string, maxAge time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < maxAge
}

func readCache(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeCache(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("emote cache dir create failed", slog.Any("err", err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("emote cache write failed", slog.String("path", path), slog.Any("err", err))
	}
}

// cachedFetch returns the cached payload when fresh, otherwise runs fetch and
// caches a non-empty result.
func cachedFetch[T any](l *emoteLoader, file string, maxAge time.Duration, fetch func() ([]T, error)) []T {
	path := l.cachePath(file)
	if cacheValid(path, maxAge) {
		var items []T
		if err := readCache(path, &items); err == nil {
			telemetry.CountEmoteCache(true)
			return items
		}
	}
	telemetry.CountEmoteCache(false)
	items, err := fetch()
	if err != nil {
		slog.Warn("emote fetch failed", slog.String("cache", file), slog.Any("err", err))
		return nil
	}
	if len(items) > 0 {
		writeCache(path, items)
	}
	return items
}

// FFZ

type ffzSetsPayload struct {
	Sets map[string]struct {
		Emoticons []struct {
			Name string            `json:"name"`
			URLs map[string]string `json:"urls"`
		} `json:"emoticons"`
	} `json:"sets"`
}

func (l *emoteLoader) loadFFZ(ctx context.Context, set *emoteSet) {
	addSets := func(payload ffzSetsPayload, dst map[string]model.Emote) int {
		n := 0
		for _, s := range payload.Sets {
			for _, e := range s.Emoticons {
				url := e.URLs["4"]
				if url == "" {
					url = e.URLs["2"]
				}
				if url == "" {
					url = e.URLs["1"]
				}
				if e.Name == "" || url == "" {
					continue
				}
				if strings.HasPrefix(url, "//") {
					url = "https:" + url
				}
				dst[e.Name] = model.Emote{Code: e.Name, URL: url, Provider: model.EmoteFFZ}
				n++
			}
		}
		return n
	}

	var global ffzSetsPayload
	if err := l.getJSON(ctx, l.ffzBase()+"/set/global", &global); err != nil {
		slog.Warn("ffz global emote load failed", slog.Any("err", err))
	} else {
		slog.Info("loaded ffz global emotes", slog.Int("count", addSets(global, set.global)))
	}

	var room ffzSetsPayload
	if err := l.getJSON(ctx, l.ffzBase()+"/room/"+l.Channel, &room); err != nil {
		slog.Debug("ffz room emote load failed", slog.Any("err", err))
		return
	}
	if n := addSets(room, set.channel); n > 0 {
		slog.Info("loaded ffz channel emotes", slog.Int("count", n))
	}
}

// BTTV

type bttvEmote struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

type bttvSharedItem struct {
	ID    string    `json:"id"`
	Emote bttvEmote `json:"emote"`
}

func bttvURL(id string) string {
	return "https://cdn.betterttv.net/emote/" + id + "/1x"
}

func (l *emoteLoader) loadBTTV(ctx context.Context, set *emoteSet) {
	var global []bttvEmote
	if err := l.getJSON(ctx, l.bttvBase()+"/cached/emotes/global", &global); err != nil {
		slog.Warn("bttv global emote load failed", slog.Any("err", err))
	}
	for _, e := range global {
		if e.Code != "" && e.ID != "" {
			set.global[e.Code] = model.Emote{Code: e.Code, URL: bttvURL(e.ID), Provider: model.EmoteBTTV}
		}
	}

	addShared := func(items []bttvSharedItem) int {
		n := 0
		for _, item := range items {
			e := item.Emote
			if e.Code == "" || e.ID == "" {
				continue
			}
			if _, ok := set.global[e.Code]; ok {
				continue
			}
			set.global[e.Code] = model.Emote{Code: e.Code, URL: bttvURL(e.ID), Provider: model.EmoteBTTV}
			n++
		}
		return n
	}

	top := cachedFetch(l, bttvTopCacheFile, topCacheMaxAge, func() ([]bttvSharedItem, error) {
		return l.fetchBTTVShared(ctx, "top", 100)
	})
	addShared(top)

	trending := cachedFetch(l, bttvTrendingCacheFile, trendingCacheMaxAge, func() ([]bttvSharedItem, error) {
		return l.fetchBTTVShared(ctx, "trending", 50)
	})
	addShared(trending)

	ident := l.ChannelID
	if ident == "" {
		ident = l.Channel
	}
	var channel struct {
		ChannelEmotes []bttvEmote `json:"channelEmotes"`
		SharedEmotes  []bttvEmote `json:"sharedEmotes"`
	}
	if err := l.getJSON(ctx, l.bttvBase()+"/cached/users/twitch/"+ident, &channel); err != nil {
		slog.Debug("bttv channel emote load failed", slog.Any("err", err))
		return
	}
	for _, e := range append(channel.ChannelEmotes, channel.SharedEmotes...) {
		if e.Code != "" && e.ID != "" {
			set.channel[e.Code] = model.Emote{Code: e.Code, URL: bttvURL(e.ID), Provider: model.EmoteBTTV}
		}
	}
}

// fetchBTTVShared pages through the shared emote listing with the id of the
// last item as the "before" cursor.
func (l *emoteLoader) fetchBTTVShared(ctx context.Context, kind string, maxPages int) ([]bttvSharedItem, error) {
	var all []bttvSharedItem
	before := ""
	for page := 1; page <= maxPages; page++ {
		url := fmt.Sprintf("%s/emotes/shared/%s?limit=%d", l.bttvBase(), kind, bttvPageSize)
		if before != "" {
			url += "&before=" + before
		}
		var items []bttvSharedItem
		if err := l.getJSON(ctx, url, &items); err != nil {
			if len(all) > 0 {
				return all, nil
			}
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		before = items[len(items)-1].ID
		if before == "" {
			break
		}
	}
	return all, nil
}

// 7TV

type sevenTVImage struct {
	URL        string `json:"url"`
	Format     string `json:"format"`
	Name       string `json:"name"`
	Scale      int    `json:"scale"`
	FrameCount int    `json:"frameCount"`
}

type sevenTVSearchEmote struct {
	ID          string         `json:"id"`
	DefaultName string         `json:"defaultName"`
	Images      []sevenTVImage `json:"images"`
}

// url picks the 1x-scale image, falling back to the first listed.
func (e sevenTVSearchEmote) url() string {
	for _, img := range e.Images {
		if img.Scale == 1 && img.URL != "" {
			return ensureHTTPS(img.URL)
		}
	}
	if len(e.Images) > 0 && e.Images[0].URL != "" {
		return ensureHTTPS(e.Images[0].URL)
	}
	return ""
}

func (e sevenTVSearchEmote) animated() bool {
	for _, img := range e.Images {
		if img.FrameCount > 1 {
			return true
		}
	}
	return false
}

type sevenTVRestEmote struct {
	Name string `json:"name"`
	Data struct {
		Animated bool `json:"animated"`
		Host     struct {
			URL   string `json:"url"`
			Files []struct {
				Name   string `json:"name"`
				Format string `json:"format"`
			} `json:"files"`
		} `json:"host"`
	} `json:"data"`
}

func (e sevenTVRestEmote) url() string {
	host := e.Data.Host
	if host.URL == "" {
		return ""
	}
	for _, f := range host.Files {
		if f.Name == "1x.webp" {
			return ensureHTTPS(host.URL + "/" + f.Name)
		}
	}
	for _, f := range host.Files {
		if f.Format == "WEBP" {
			return ensureHTTPS(host.URL + "/" + f.Name)
		}
	}
	return ensureHTTPS(host.URL + "/1x.webp")
}

func ensureHTTPS(url string) string {
	if strings.HasPrefix(url, "//") {
		return "https:" + url
	}
	return url
}

func (l *emoteLoader) loadSevenTV(ctx context.Context, set *emoteSet) {
	var global struct {
		Emotes []sevenTVRestEmote `json:"emotes"`
	}
	if err := l.getJSON(ctx, l.sevenTVBase()+"/emote-sets/global", &global); err != nil {
		slog.Warn("7tv global emote load failed", slog.Any("err", err))
	}
	for _, e := range global.Emotes {
		if url := e.url(); e.Name != "" && url != "" {
			set.global[e.Name] = model.Emote{Code: e.Name, URL: url, Provider: model.EmoteSevenTV, Animated: e.Data.Animated}
		}
	}

	addSearch := func(emotes []sevenTVSearchEmote) int {
		n := 0
		for _, e := range emotes {
			if e.DefaultName == "" {
				continue
			}
			if _, ok := set.global[e.DefaultName]; ok {
				continue
			}
			url := e.url()
			if url == "" {
				continue
			}
			set.global[e.DefaultName] = model.Emote{Code: e.DefaultName, URL: url, Provider: model.EmoteSevenTV, Animated: e.animated()}
			n++
		}
		return n
	}

	top := cachedFetch(l, sevenTVTopCacheFile, topCacheMaxAge, func() ([]sevenTVSearchEmote, error) {
		return l.fetchSevenTVSearch(ctx, "TOP_ALL_TIME", 150)
	})
	addSearch(top)

	trending := cachedFetch(l, sevenTVTrendCacheFile, trendingCacheMaxAge, func() ([]sevenTVSearchEmote, error) {
		return l.fetchSevenTVSearch(ctx, "TRENDING_MONTHLY", 50)
	})
	addSearch(trending)

	ident := l.ChannelID
	if ident == "" {
		ident = l.Channel
	}
	var user struct {
		EmoteSet struct {
			Emotes []sevenTVRestEmote `json:"emotes"`
		} `json:"emote_set"`
	}
	if err := l.getJSON(ctx, l.sevenTVBase()+"/users/twitch/"+ident, &user); err != nil {
		slog.Debug("7tv channel emote load failed", slog.Any("err", err))
		return
	}
	for _, e := range user.EmoteSet.Emotes {
		if url := e.url(); e.Name != "" && url != "" {
			set.channel[e.Name] = model.Emote{Code: e.Name, URL: url, Provider: model.EmoteSevenTV, Animated: e.Data.Animated}
		}
	}
}

// fetchSevenTVSearch pages through the GraphQL emote search with the given
// sort, honoring the server-reported page count.
func (l *emoteLoader) fetchSevenTVSearch(ctx context.Context, sortBy string, maxPages int) ([]sevenTVSearchEmote, error) {
	var all []sevenTVSearchEmote
	totalPages := maxPages
	for page := 1; page <= totalPages; page++ {
		payload := map[string]any{
			"operationName": "EmoteSearch",
			"query":         sevenTVEmotesQuery,
			"variables": map[string]any{
				"page":    page,
				"perPage": sevenTVPageSize,
				"sortBy":  sortBy,
			},
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.sevenTVGQL(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Origin", "https://7tv.app")
		req.Header.Set("Referer", "https://7tv.app/")

		resp, err := l.http().Do(req)
		if err != nil {
			if len(all) > 0 {
				return all, nil
			}
			return nil, err
		}
		var result struct {
			Data struct {
				Emotes struct {
					Search struct {
						Items     []sevenTVSearchEmote `json:"items"`
						PageCount int                  `json:"pageCount"`
					} `json:"search"`
				} `json:"emotes"`
			} `json:"data"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&result)
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
		if decodeErr != nil || resp.StatusCode != http.StatusOK {
			if len(all) > 0 {
				return all, nil
			}
			if decodeErr != nil {
				return nil, decodeErr
			}
			return nil, fmt.Errorf("7tv gql: status %d", resp.StatusCode)
		}
		search := result.Data.Emotes.Search
		if len(search.Items) == 0 {
			break
		}
		all = append(all, search.Items...)
		if search.PageCount > 0 && search.PageCount < totalPages {
			totalPages = search.PageCount
		}
	}
	return all, nil
}
