package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shaiso/Relay/internal/domain"
)

// ErrCatalog — каталог агентов не удалось загрузить.
var ErrCatalog = errors.New("agent catalog unavailable")

// maxCatalogBytes — ограничение размера ответа каталога.
const maxCatalogBytes = 4 << 20

// catalogEntry — элемент каталога.
//
// Каталоги отличаются именами полей, поэтому принимаются синонимы:
// id / qualifiedName / name и description / displayName.
type catalogEntry struct {
	ID            string `json:"id"`
	QualifiedName string `json:"qualifiedName"`
	Name          string `json:"name"`
	Endpoint      string `json:"endpoint"`
	Description   string `json:"description"`
	DisplayName   string `json:"displayName"`
}

// catalogResponse — ответ GET {catalog}/agents.
type catalogResponse struct {
	Agents  []catalogEntry `json:"agents"`
	Servers []catalogEntry `json:"servers"`
}

// fetchCatalog загружает каталог агентов.
func (r *Registry) fetchCatalog(ctx context.Context) ([]domain.BackendDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.CatalogURL+"/agents", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrCatalog, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrCatalog, resp.StatusCode)
	}

	var catalog catalogResponse
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrCatalog, err)
	}

	entries := append(catalog.Agents, catalog.Servers...)
	return r.parseCatalog(entries), nil
}

// parseCatalog преобразует записи каталога в дескрипторы.
//
// Запись с идентификатором — удалённый агент. Запись без идентификатора,
// но с http(s) endpoint'ом — внешний HTTP сервер с ID, равным URL.
// Прочие записи пропускаются.
func (r *Registry) parseCatalog(entries []catalogEntry) []domain.BackendDescriptor {
	seen := make(map[string]bool, len(entries))
	result := make([]domain.BackendDescriptor, 0, len(entries))

	for _, e := range entries {
		id := firstNonEmpty(e.ID, e.QualifiedName, e.Name)
		endpoint := strings.TrimRight(strings.TrimSpace(e.Endpoint), "/")
		description := firstNonEmpty(e.Description, e.DisplayName)

		var d domain.BackendDescriptor
		switch {
		case id != "":
			agentID := domain.NormalizeAgentID(id)
			if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
				endpoint = r.cfg.AgentServerURL + "/" + domain.AgentPath(agentID)
			}
			d = domain.BackendDescriptor{
				ID:           agentID,
				Kind:         domain.BackendKindRemoteAgent,
				Endpoint:     endpoint,
				Availability: domain.AvailabilityAvailable,
				Description:  description,
			}

		case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
			d = domain.BackendDescriptor{
				ID:           endpoint,
				Kind:         domain.BackendKindExternalHTTP,
				Endpoint:     endpoint,
				Availability: domain.AvailabilityUnknown,
				Description:  description,
			}

		default:
			r.logger.Debug("skipping catalog entry without id or endpoint")
			continue
		}

		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		result = append(result, d)
	}

	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
