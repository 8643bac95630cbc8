// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package openfoodfacts looks up product nutrition in the Open Food Facts
// database.
//
// See https://openfoodfacts.github.io/openfoodfacts-server/api/.
package openfoodfacts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/diary"
	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/request"
)

// DefaultBaseURL is the Open Food Facts server used when Client.BaseURL is
// empty.
const DefaultBaseURL = "https://world.openfoodfacts.org"

// Client is an Open Food Facts API client.
type Client struct {
	// BaseURL is the server URL without trailing slash.
	BaseURL string
	// HTTPClient is used for requests. If nil, request.DefaultClient is used.
	HTTPClient *http.Client
}

var _ diary.NutritionLookup = (*Client)(nil)

type searchResponse struct {
	Products []product `json:"products"`
}

type product struct {
	Nutriments nutriments `json:"nutriments"`
}

// nutriments holds per-100g values. Missing keys decode as zero, null
// values fail the lookup.
type nutriments struct {
	EnergyKcal    nutrient `json:"energy-kcal"`
	Proteins      nutrient `json:"proteins"`
	Fat           nutrient `json:"fat"`
	Carbohydrates nutrient `json:"carbohydrates"`
}

var errNull = errors.New("null nutrition value")

func (n *nutriments) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return errNull
	}
	type plain nutriments
	return json.Unmarshal(b, (*plain)(n))
}

type nutrient float64

func (n *nutrient) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return errNull
	}
	return json.Unmarshal(b, (*float64)(n))
}

// Lookup returns the nutrition profile of the best search match for name.
//
// When nothing is found, the result is a zero profile. When the search
// fails, the result is a zero profile with Err set.
func (c *Client) Lookup(ctx context.Context, name string) diary.Lookup {
	resp, err := request.Make[searchResponse](ctx, request.Params{
		Method: http.MethodGet,
		URL:    c.baseURL() + "/cgi/search.pl",
		Query: url.Values{
			"search_terms":  {name},
			"search_simple": {"1"},
			"json":          {"1"},
			"page_size":     {"1"},
		},
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		return diary.Lookup{Err: err}
	}
	if len(resp.Products) == 0 {
		return diary.Lookup{}
	}

	n := resp.Products[0].Nutriments
	return diary.Lookup{
		Profile: diary.NewProfile(float64(n.EnergyKcal), float64(n.Proteins), float64(n.Fat), float64(n.Carbohydrates)),
		Found:   true,
	}
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}
