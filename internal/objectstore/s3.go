package objectstore

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// S3Config configures an S3-compatible bucket. When Endpoint is set the
// backend uses path-style addressing (R2, MinIO, test servers).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Timeout         time.Duration
}

// S3Backend stores objects in an S3-compatible bucket using SigV4-signed requests
type S3Backend struct {
	cfg    S3Config
	client *http.Client
	now    func() time.Time
}

// NewS3Backend creates a new S3 backend
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	return &S3Backend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}, nil
}

// Name returns the backend name
func (s *S3Backend) Name() string {
	return "s3:" + s.cfg.Bucket
}

// Get downloads an object
func (s *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, key, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(s.Name(), err)
	}
	if resp.StatusCode >= 300 {
		return nil, classifyHTTPStatus(s.Name(), key, resp.StatusCode, string(body))
	}
	return body, nil
}

// Put uploads an object, replacing any existing one
func (s *S3Backend) Put(ctx context.Context, key string, body []byte) error {
	resp, err := s.do(ctx, http.MethodPut, key, nil, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return classifyHTTPStatus(s.Name(), key, resp.StatusCode, string(respBody))
	}
	return nil
}

// Delete removes an object. S3 answers 204 for absent keys, so existence is
// checked with HEAD first.
func (s *S3Backend) Delete(ctx context.Context, key string) error {
	head, err := s.do(ctx, http.MethodHead, key, nil, nil)
	if err != nil {
		return err
	}
	head.Body.Close()
	if head.StatusCode >= 300 {
		return classifyHTTPStatus(s.Name(), key, head.StatusCode, "")
	}

	resp, err := s.do(ctx, http.MethodDelete, key, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return classifyHTTPStatus(s.Name(), key, resp.StatusCode, string(respBody))
	}
	return nil
}

type listBucketResult struct {
	Contents []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
	IsTruncated           bool   `xml:"IsTruncated"`
	NextContinuationToken string `xml:"NextContinuationToken"`
}

// List returns every key under prefix, following continuation tokens
func (s *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	token := ""

	for {
		query := url.Values{}
		query.Set("list-type", "2")
		query.Set("prefix", prefix)
		if token != "" {
			query.Set("continuation-token", token)
		}

		resp, err := s.do(ctx, http.MethodGet, "", query, nil)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, classifyTransportError(s.Name(), err)
		}
		if resp.StatusCode >= 300 {
			// A missing bucket is a configuration problem, not an empty listing
			if resp.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("%s: bucket not found: %s", s.Name(), truncate(string(body), 200))
			}
			return nil, classifyHTTPStatus(s.Name(), prefix, resp.StatusCode, string(body))
		}

		var result listBucketResult
		if err := xml.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("%s: failed to parse list response: %w", s.Name(), err)
		}
		for _, obj := range result.Contents {
			keys = append(keys, obj.Key)
		}

		if !result.IsTruncated || result.NextContinuationToken == "" {
			break
		}
		token = result.NextContinuationToken
	}

	sort.Strings(keys)
	return keys, nil
}

// do builds, signs and sends a request. Transport failures come back
// classified; HTTP status handling is left to the caller.
func (s *S3Backend) do(ctx context.Context, method, key string, query url.Values, body []byte) (*http.Response, error) {
	host, path := s.location(key)

	scheme := "https"
	if s.cfg.Endpoint != "" {
		if u, err := url.Parse(s.cfg.Endpoint); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
	}

	rawQuery := canonicalQuery(query)
	reqURL := scheme + "://" + host + path
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", s.Name(), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = int64(len(body))
	}

	s.sign(req, host, path, rawQuery, body)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(s.Name(), err)
	}
	return resp, nil
}

// location returns the request host and the escaped path for key
func (s *S3Backend) location(key string) (string, string) {
	escapedKey := uriEncode(key, false)
	if s.cfg.Endpoint != "" {
		host := strings.TrimPrefix(strings.TrimPrefix(s.cfg.Endpoint, "https://"), "http://")
		path := "/" + s.cfg.Bucket
		if key != "" {
			path += "/" + escapedKey
		}
		return host, path
	}
	return fmt.Sprintf("%s.s3.%s.amazonaws.com", s.cfg.Bucket, s.cfg.Region), "/" + escapedKey
}

// sign adds AWS Signature Version 4 headers to req
func (s *S3Backend) sign(req *http.Request, host, path, rawQuery string, body []byte) {
	t := s.now().UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")
	payloadHash := hashSHA256(body)

	req.Host = host
	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	signedHeaders := "host;x-amz-content-sha256;x-amz-date"
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-content-sha256:%s\nx-amz-date:%s\n", host, payloadHash, amzDate)
	if ct := req.Header.Get("Content-Type"); ct != "" {
		signedHeaders = "content-type;" + signedHeaders
		canonicalHeaders = "content-type:" + ct + "\n" + canonicalHeaders
	}

	canonicalRequest := strings.Join([]string{
		req.Method,
		path,
		rawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, s.cfg.Region)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		hashSHA256([]byte(canonicalRequest)),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+s.cfg.SecretAccessKey), dateStamp)
	kRegion := hmacSHA256(kDate, s.cfg.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.cfg.AccessKeyID, credentialScope, signedHeaders, signature,
	))
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hashSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// canonicalQuery encodes query parameters sorted by key, as SigV4 requires
func canonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range query[k] {
			parts = append(parts, uriEncode(k, true)+"="+uriEncode(v, true))
		}
	}
	return strings.Join(parts, "&")
}

// uriEncode percent-encodes everything except RFC 3986 unreserved characters.
// Slashes are kept unless encodeSlash is set.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
