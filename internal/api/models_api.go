package api

import (
	"context"
	"net/url"
	"sort"

	"github.com/tejusbharadwaj/univers/internal/models"
)

const (
	thingModelsPath = "/model-service/v2.1/thing-models"
	devicesPath     = "/connect-service/v2.1/devices"

	modelPageSize  = 500
	devicePageSize = 1000

	// maxPages bounds pagination against a gateway that never returns a short page.
	maxPages = 1000
)

type pagination struct {
	PageNo   int `json:"pageNo"`
	PageSize int `json:"pageSize"`
}

type i18nString struct {
	DefaultValue string `json:"defaultValue"`
}

type thingModel struct {
	ModelID       string                       `json:"modelId"`
	Name          i18nString                   `json:"name"`
	Measurepoints map[string]measurepointEntry `json:"measurepoints"`
}

type measurepointEntry struct {
	Identifier string `json:"identifier"`
}

type device struct {
	AssetID    string     `json:"assetId"`
	ModelID    string     `json:"modelId"`
	DeviceName i18nString `json:"deviceName"`
}

type searchPage[T any] struct {
	Items []T `json:"items"`
}

// ListModels enumerates the organization's thing models together with their
// measure points and the device assets implementing them. Models and their
// identifiers are sorted so the listing is stable across calls.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	things, err := searchAll[thingModel](ctx, c, "thing_models_search", thingModelsPath, modelPageSize, map[string]interface{}{
		"projection": []string{"modelId", "modelIdPath", "name", "measurepoints"},
	})
	if err != nil {
		return nil, err
	}
	if len(things) == 0 {
		return nil, nil
	}

	devices, err := searchAll[device](ctx, c, "devices_search", devicesPath, devicePageSize, map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	assetsByModel := make(map[string][]models.Asset)
	for _, d := range devices {
		assetsByModel[d.ModelID] = append(assetsByModel[d.ModelID], models.Asset{
			ID:   d.AssetID,
			Name: d.DeviceName.DefaultValue,
		})
	}

	descriptors := make([]models.ModelDescriptor, 0, len(things))
	for _, t := range things {
		if t.ModelID == "" {
			continue
		}
		identifiers := make([]string, 0, len(t.Measurepoints))
		for key, mp := range t.Measurepoints {
			id := mp.Identifier
			if id == "" {
				id = key
			}
			identifiers = append(identifiers, id)
		}
		sort.Strings(identifiers)

		assets := assetsByModel[t.ModelID]
		sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })

		descriptors = append(descriptors, models.ModelDescriptor{
			ID:          t.ModelID,
			Name:        t.Name.DefaultValue,
			Identifiers: identifiers,
			Assets:      assets,
		})
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].ID < descriptors[j].ID })
	return descriptors, nil
}

// searchAll pages through an action=search endpoint until a short page.
func searchAll[T any](ctx context.Context, c *Client, endpoint, path string, pageSize int, body map[string]interface{}) ([]T, error) {
	var all []T
	for pageNo := 1; pageNo <= maxPages; pageNo++ {
		req := make(map[string]interface{}, len(body)+1)
		for k, v := range body {
			req[k] = v
		}
		req["pagination"] = pagination{PageNo: pageNo, PageSize: pageSize}

		var page searchPage[T]
		if err := c.post(ctx, endpoint, path, url.Values{"action": {"search"}}, req, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if len(page.Items) < pageSize {
			break
		}
	}
	return all, nil
}
