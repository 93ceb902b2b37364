// Package rpc is the stateful RPC Client: session lifecycle (maintenance
// polling, login handshake, per-endpoint wrappers) over the encrypted
// binary protocol in internal/rpc/codec.
//
// Grounded on original_source/src/pcrdb/api/client.py (PCRClient,
// call_api, login) and endpoints.py (PCRApi's endpoint wrappers).
package rpc

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pcrguild/pcrdb-collector/internal/apperr"
	"github.com/pcrguild/pcrdb-collector/internal/resilience"
	"github.com/pcrguild/pcrdb-collector/internal/rpc/codec"
)

// DefaultAppVersion seeds a fresh VersionStore before any check/game_start
// response has reported a newer one.
const DefaultAppVersion = "10.7.1"

// callTimeout matches the original's aiohttp.ClientTimeout(total=600).
const callTimeout = 600 * time.Second

// transportRetryConfig covers transient connection resets within a single
// callAPI invocation, distinct from Call's higher-level relogin-and-retry.
var transportRetryConfig = resilience.RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}

var maintenanceTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

// Client is a stateful object bound to one viewer-id. It is not
// thread-safe; a given instance is owned by exactly one worker (§4.2, §5).
type Client struct {
	httpClient *http.Client
	baseURL    string
	versions   VersionStore

	viewerID  int64
	sessionID string
	requestID string
	manifest  string
	headers   map[string]string

	log *logrus.Entry
}

// NewClient builds a Client bound to viewerID against baseURL, using
// versions to read/persist the discovered app version.
func NewClient(baseURL string, viewerID int64, versions VersionStore, log *logrus.Entry) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: callTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		versions:   versions,
		viewerID:   viewerID,
		headers:    defaultHeaders(versions.Get()),
		log:        log,
	}
}

func defaultHeaders(appVer string) map[string]string {
	return map[string]string{
		"EXCEL-VER":            "1.0.0",
		"SHORT-UDID":           "1001341751",
		"BATTLE-LOGIC-VERSION": "4",
		"IP-ADDRESS":           "10.0.2.15",
		"DEVICE-ID":            "febf37270db0254b8d1f76af92f0419f",
		"DEVICE-NAME":          "Google PIXEL 2 XL",
		"GRAPHICS-DEVICE-NAME": "Adreno (TM) 540",
		"APP-VER":              appVer,
		"RES-KEY":              "d145b29050641dac2f8b19df0afe0e59",
		"RES-VER":              "10002200",
		"KEYCHAIN":             "",
		"CHANNEL-ID":           "4",
		"PLATFORM-ID":          "4",
		"REGION-CODE":          "",
		"PLATFORM":             "2",
		"PLATFORM-OS-VERSION":  "Android OS 7.1.2 / API-25 (NOF26V/4565141)",
		"LOCALE":               "Jpn",
		"X-Unity-Version":      "2018.4.30f1",
		"DEVICE":               "2",
	}
}

// callAPI posts one encrypted endpoint request and returns its "data"
// section, updating session state from "data_headers" as a side effect.
func (c *Client) callAPI(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	key := codec.NewSessionKey()

	viewerEnc, err := codec.EncryptViewerID(c.viewerID, key)
	if err != nil {
		return nil, apperr.Transport("encrypt viewer id", err)
	}
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["viewer_id"] = viewerEnc

	cipherText, err := codec.Encrypt(body, key)
	if err != nil {
		return nil, apperr.Transport("encrypt request", err)
	}
	wire := append(cipherText, key...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(wire))
	if err != nil {
		return nil, apperr.Transport("build request", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.requestID != "" {
		req.Header.Set("REQUEST-ID", c.requestID)
	}
	if c.sessionID != "" {
		req.Header.Set("SID", c.sessionID)
	}

	var raw []byte
	transportErr := resilience.Retry(ctx, transportRetryConfig, func() error {
		if req.GetBody != nil {
			rewound, err := req.GetBody()
			if err != nil {
				return apperr.Transport("rewind request body", err)
			}
			req.Body = rewound
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.Transport(fmt.Sprintf("post %s", endpoint), err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Transport("read response body", err)
		}
		raw = respBody
		return nil
	})
	if transportErr != nil {
		return nil, transportErr
	}

	result, err := codec.Decrypt(raw)
	if err != nil {
		return nil, apperr.Decode("decrypt response", err)
	}

	c.updateSessionState(endpoint, result)

	data, _ := result["data"].(map[string]any)
	if data == nil {
		return map[string]any{}, nil
	}
	return data, nil
}

func (c *Client) updateSessionState(endpoint string, result map[string]any) {
	header, _ := result["data_headers"].(map[string]any)
	if header == nil {
		return
	}

	if endpoint == "check/game_start" {
		if storeURL, ok := header["store_url"].(string); ok {
			if newVersion := parseVersionFromStoreURL(storeURL); newVersion != "" {
				old := c.versions.Get()
				if old != newVersion && c.versions.CompareAndSet(old, newVersion) {
					c.headers["APP-VER"] = newVersion
				}
			}
		}
	}

	if sid, ok := header["sid"].(string); ok && sid != "" {
		c.sessionID = sessionIDFromSID(sid)
	}
	if reqID, ok := header["request_id"].(string); ok && reqID != "" && reqID != c.requestID {
		c.requestID = reqID
	}
	if vid, ok := toInt64(header["viewer_id"]); ok && vid != 0 && vid != c.viewerID {
		c.viewerID = vid
	}
}

// sessionIDFromSID reproduces md5(sid + "c!SID!n") (ground: literal suffix
// in the original).
func sessionIDFromSID(sid string) string {
	return md5Hex(sid + "c!SID!n")
}

// parseVersionFromStoreURL extracts the version string between the first
// underscore and the trailing 4 characters of the store_url field (ground:
// `store_url.split('_')[1][:-4]`).
func parseVersionFromStoreURL(storeURL string) string {
	parts := strings.SplitN(storeURL, "_", 2)
	if len(parts) < 2 {
		return ""
	}
	rest := parts[1]
	if len(rest) <= 4 {
		return ""
	}
	return rest[:len(rest)-4]
}

// Login runs the full handshake: poll maintenance status, set manifest
// version, sdk_login -> game_start -> load/index -> home/index, retrying
// the first two once if home/index reports a server_error.
func (c *Client) Login(ctx context.Context, uid, accessKey string) (load, home map[string]any, err error) {
	if err := c.waitForMaintenanceEnd(ctx); err != nil {
		return nil, nil, err
	}

	loginPayload := map[string]any{
		"uid": uid, "access_key": accessKey,
		"platform": c.headers["PLATFORM-ID"], "channel_id": c.headers["CHANNEL-ID"],
	}
	gameStartPayload := map[string]any{
		"app_type": 0, "campaign_data": "", "campaign_user": rand.Intn(1_000_000) + 1,
	}

	if _, err := c.callAPI(ctx, "tool/sdk_login", loginPayload); err != nil {
		return nil, nil, apperr.Session("sdk_login", err)
	}
	if _, err := c.callAPI(ctx, "check/game_start", gameStartPayload); err != nil {
		return nil, nil, apperr.Session("check/game_start", err)
	}

	load, err = c.callAPI(ctx, "load/index", map[string]any{"carrier": "google"})
	if err != nil {
		return nil, nil, apperr.Session("load/index", err)
	}
	home, err = c.callAPI(ctx, "home/index", map[string]any{
		"message_id": rand.Intn(5000) + 1, "tips_id_list": []any{}, "is_first": 1, "gold_history": 0,
	})
	if err != nil {
		return nil, nil, apperr.Session("home/index", err)
	}

	if _, hasErr := home["server_error"]; hasErr {
		if _, err := c.callAPI(ctx, "tool/sdk_login", loginPayload); err != nil {
			return nil, nil, apperr.Session("sdk_login retry", err)
		}
		if _, err := c.callAPI(ctx, "check/game_start", gameStartPayload); err != nil {
			return nil, nil, apperr.Session("check/game_start retry", err)
		}
	}

	return load, home, nil
}

// waitForMaintenanceEnd polls source_ini/get_maintenance_status until the
// response carries no maintenance_message, parsing the embedded end-time
// and sleeping until then, falling back to a 60s sleep if unparsable.
func (c *Client) waitForMaintenanceEnd(ctx context.Context) error {
	for {
		manifest, err := c.callAPI(ctx, "source_ini/get_maintenance_status", map[string]any{})
		if err != nil {
			return apperr.Transport("get_maintenance_status", err)
		}
		msg, hasMsg := manifest["maintenance_message"].(string)
		if !hasMsg {
			if ver, ok := manifest["required_manifest_ver"]; ok {
				c.manifest = fmt.Sprintf("%v", ver)
				c.headers["MANIFEST-VER"] = c.manifest
			}
			return nil
		}

		wait := 60 * time.Second
		if match := maintenanceTimestamp.FindString(msg); match != "" {
			if end, err := time.ParseInLocation("2006-01-02 15:04:05", match, time.Local); err == nil {
				if until := time.Until(end); until > 0 {
					wait = until
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Call invokes endpoint with payload; on any transport/decode failure it
// logs in again once and retries once, surfacing failure as an empty map
// (§4.2, §7).
func (c *Client) Call(ctx context.Context, uid, accessKey, endpoint string, payload map[string]any) map[string]any {
	data, err := c.callAPI(ctx, endpoint, payload)
	if err == nil {
		return data
	}
	if c.log != nil {
		c.log.WithError(err).WithField("endpoint", endpoint).Debug("call failed, relogging in")
	}
	if _, _, err := c.Login(ctx, uid, accessKey); err != nil {
		return map[string]any{}
	}
	data, err = c.callAPI(ctx, endpoint, payload)
	if err != nil {
		return map[string]any{}
	}
	return data
}

// QueryProfile, QueryClan, QueryArenaRanking, QueryGrandArenaRanking,
// QueryClanBattleRanking are the endpoint wrappers from endpoints.py.

func (c *Client) QueryProfile(ctx context.Context, uid, accessKey string, targetViewerID int64) map[string]any {
	return c.Call(ctx, uid, accessKey, "profile/get_profile", map[string]any{"target_viewer_id": targetViewerID})
}

func (c *Client) QueryClan(ctx context.Context, uid, accessKey string, clanID int64) map[string]any {
	return c.Call(ctx, uid, accessKey, "clan/others_info", map[string]any{"clan_id": clanID})
}

func (c *Client) QueryArenaRanking(ctx context.Context, uid, accessKey string, page int) map[string]any {
	return c.Call(ctx, uid, accessKey, "arena/ranking", map[string]any{"limit": 20, "page": page})
}

func (c *Client) QueryGrandArenaRanking(ctx context.Context, uid, accessKey string, page int) map[string]any {
	return c.Call(ctx, uid, accessKey, "grand_arena/ranking", map[string]any{"limit": 20, "page": page})
}

func (c *Client) QueryClanBattleRanking(ctx context.Context, uid, accessKey string, page int, clanID int64) map[string]any {
	return c.Call(ctx, uid, accessKey, "clan_battle/period_ranking", map[string]any{
		"clan_id": clanID, "clan_battle_id": -1, "period": -1, "month": 0,
		"page": page, "is_my_clan": 0, "is_first": 1,
	})
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
