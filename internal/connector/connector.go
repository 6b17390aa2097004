// Package connector talks to the vendor's software download connector API:
// listing the SKUs of a product edition and fetching the signed download
// links of a SKU.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/clean-dependency-project/winiso/internal/webclient"
)

const (
	// DefaultBaseURL is the connector API root.
	DefaultBaseURL = "https://www.microsoft.com/software-download-connector/api"

	// DefaultProfile is the API profile id the vendor's own page uses.
	DefaultProfile = "606624d44113"

	// DefaultLocale is the locale sent with every request.
	DefaultLocale = "en-US"
)

// Error categories, matched with errors.Is against an *APIError.
var (
	// ErrTransport indicates the request could not be sent or got no response.
	ErrTransport = webclient.ErrTransport

	// ErrDeserialize indicates the response body was not the expected JSON.
	ErrDeserialize = errors.New("failed to deserialize response")

	// ErrBusiness indicates the API answered with a non-empty Errors list.
	ErrBusiness = errors.New("connector API reported errors")

	// ErrNoMatchingArch indicates no download option matched the architecture.
	ErrNoMatchingArch = errors.New("no download option for architecture")
)

// Kind classifies an APIError.
type Kind int

const (
	KindTransport Kind = iota
	KindDeserialize
	KindBusiness
	KindNoMatchingArch
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDeserialize:
		return "deserialize"
	case KindBusiness:
		return "business"
	case KindNoMatchingArch:
		return "no_matching_arch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// APIError represents a failed connector call.
type APIError struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error returns the message alone for business errors, since that text is
// the vendor's own and is reported to users verbatim.
func (e *APIError) Error() string {
	if e.Kind == KindBusiness {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrDeserialize:
		return e.Kind == KindDeserialize
	case ErrBusiness:
		return e.Kind == KindBusiness
	case ErrNoMatchingArch:
		return e.Kind == KindNoMatchingArch
	}
	return false
}

// Sku is one language build of a product edition.
type Sku struct {
	ID       string `json:"Id"`
	Language string `json:"Language"`
}

// skuList is the body of the SKU listing endpoint. Skus is required; a
// rejected session answers with an Errors list and no Skus at all.
type skuList struct {
	Skus *[]Sku `json:"Skus"`
}

// DownloadOption is one signed download link. DownloadType indexes the
// architecture table.
type DownloadOption struct {
	URI          string `json:"Uri"`
	DownloadType int    `json:"DownloadType"`
}

// VendorError is one entry of the API's Errors list.
type VendorError struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// DownloadOptions is the body of the download links endpoint. Missing
// fields decode to their zero values.
type DownloadOptions struct {
	ProductDownloadOptions     []DownloadOption `json:"ProductDownloadOptions"`
	Errors                     []VendorError    `json:"Errors"`
	DownloadExpirationDateTime time.Time        `json:"DownloadExpirationDateTime"`
}

// Err returns a business APIError when the Errors list is non-empty. The
// message is every "Key: Value" pair joined by single spaces.
func (o *DownloadOptions) Err() error {
	if len(o.Errors) == 0 {
		return nil
	}
	parts := make([]string, len(o.Errors))
	for i, e := range o.Errors {
		parts[i] = e.Key + ": " + e.Value
	}
	return &APIError{
		Kind:    KindBusiness,
		Op:      OpDownloadLinks,
		Message: strings.Join(parts, " "),
	}
}

// Operation names used in APIError.Op.
const (
	OpSkusByEdition = "skus_by_edition"
	OpPrimeEdition  = "prime_edition"
	OpDownloadLinks = "download_links"
)

// Client defines the connector API operations.
type Client interface {
	// SkusByEdition lists the SKUs of a product edition in API order.
	SkusByEdition(ctx context.Context, editionID, sessionID string) ([]Sku, error)

	// PrimeEdition announces the edition for the session. The vendor refuses
	// link requests for a session that has not asked about the edition
	// first. The response body is ignored.
	PrimeEdition(ctx context.Context, editionID, sessionID string) error

	// DownloadLinksBySku fetches the download options of a SKU. referer must
	// be the product page the SKU was found on. Business errors in the
	// response are not turned into an error here; see DownloadOptions.Err.
	DownloadLinksBySku(ctx context.Context, skuID, sessionID, referer string) (*DownloadOptions, error)
}

// Config holds configuration for the connector client
type Config struct {
	BaseURL string
	Profile string
	Locale  string
}

// DefaultConfig returns the vendor's production settings.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Profile: DefaultProfile,
		Locale:  DefaultLocale,
	}
}

// client implements the Client interface
type client struct {
	config Config
	web    *webclient.Client
}

// NewClient creates a connector client on top of the shared web client.
func NewClient(web *webclient.Client, config Config) Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Profile == "" {
		config.Profile = DefaultProfile
	}
	if config.Locale == "" {
		config.Locale = DefaultLocale
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &client{config: config, web: web}
}

func (c *client) skuURL(editionID, sessionID string) string {
	return fmt.Sprintf("%s/getskuinformationbyproductedition?profile=%s&ProductEditionId=%s&SKU=undefined&friendlyFileName=undefined&Locale=%s&sessionID=%s",
		c.config.BaseURL,
		url.QueryEscape(c.config.Profile),
		url.QueryEscape(editionID),
		url.QueryEscape(c.config.Locale),
		url.QueryEscape(sessionID))
}

func (c *client) linksURL(skuID, sessionID string) string {
	return fmt.Sprintf("%s/GetProductDownloadLinksBySku?profile=%s&productEditionId=undefined&SKU=%s&friendlyFileName=undefined&Locale=%s&sessionID=%s",
		c.config.BaseURL,
		url.QueryEscape(c.config.Profile),
		url.QueryEscape(skuID),
		url.QueryEscape(c.config.Locale),
		url.QueryEscape(sessionID))
}

// SkusByEdition lists the SKUs of a product edition
func (c *client) SkusByEdition(ctx context.Context, editionID, sessionID string) ([]Sku, error) {
	resp, err := c.web.Get(ctx, c.skuURL(editionID, sessionID))
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Op: OpSkusByEdition, Message: "request failed", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var list skuList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &APIError{
			Kind:    KindDeserialize,
			Op:      OpSkusByEdition,
			Message: fmt.Sprintf("edition %s (status %d)", editionID, resp.StatusCode),
			Err:     err,
		}
	}
	if list.Skus == nil {
		return nil, &APIError{
			Kind:    KindDeserialize,
			Op:      OpSkusByEdition,
			Message: fmt.Sprintf("edition %s (status %d): response has no Skus", editionID, resp.StatusCode),
		}
	}

	return *list.Skus, nil
}

// PrimeEdition repeats the SKU listing request and discards the answer
func (c *client) PrimeEdition(ctx context.Context, editionID, sessionID string) error {
	resp, err := c.web.Get(ctx, c.skuURL(editionID, sessionID))
	if err != nil {
		return &APIError{Kind: KindTransport, Op: OpPrimeEdition, Message: "request failed", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// DownloadLinksBySku fetches the download options of a SKU
func (c *client) DownloadLinksBySku(ctx context.Context, skuID, sessionID, referer string) (*DownloadOptions, error) {
	resp, err := c.web.Get(ctx, c.linksURL(skuID, sessionID), webclient.WithReferer(referer))
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Op: OpDownloadLinks, Message: "request failed", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var options DownloadOptions
	if err := json.NewDecoder(resp.Body).Decode(&options); err != nil {
		return nil, &APIError{
			Kind:    KindDeserialize,
			Op:      OpDownloadLinks,
			Message: fmt.Sprintf("sku %s (status %d)", skuID, resp.StatusCode),
			Err:     err,
		}
	}

	return &options, nil
}
