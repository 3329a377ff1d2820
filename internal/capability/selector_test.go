package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
)

func testWorkers() []*models.Worker {
	return []*models.Worker{
		{
			ID:   1,
			Name: "xades-worker",
			Capabilities: models.Capabilities{
				SignatureQualifiers: []string{"eu_eidas_ades"},
				SignatureFormat:     "X",
				ConformanceLevel:    "AdES-B-B",
				SignaturePackaging:  "ENVELOPING",
				SignatureAlgorithms: []string{"SHA256withECDSA"},
				DocumentTypes:       []models.DocumentType{models.DocumentTypeContent},
			},
		},
		{
			ID:   2,
			Name: "pades-worker",
			Capabilities: models.Capabilities{
				SignatureQualifiers: []string{"eu_eidas_qes"},
				SignatureFormat:     "P",
				ConformanceLevel:    "AdES-B-B",
				SignaturePackaging:  "ENVELOPED",
				SignatureAlgorithms: []string{"SHA256withRSA"},
				DocumentTypes:       []models.DocumentType{models.DocumentTypeHash, models.DocumentTypeContent},
			},
		},
		{
			ID:   3,
			Name: "pades-lta-worker",
			Capabilities: models.Capabilities{
				SignatureQualifiers:   []string{"eu_eidas_qes"},
				SignatureFormat:       "P",
				ConformanceLevel:      "AdES-B-LTA",
				SignaturePackaging:    "ENVELOPED",
				SignatureAlgorithms:   []string{"SHA256withRSA"},
				DocumentTypes:         []models.DocumentType{models.DocumentTypeHash},
				ReturnsValidationInfo: true,
			},
		},
	}
}

func TestSelectorSelect(t *testing.T) {
	selector := NewSelector(testWorkers())

	t.Run("picks the only matching worker", func(t *testing.T) {
		worker, err := selector.Select(Spec{
			SignatureFormat:  "P",
			ConformanceLevel: "AdES-B-B",
		})
		require.NoError(t, err)
		require.Equal(t, "pades-worker", worker.Name)
	})

	t.Run("first match wins on ties", func(t *testing.T) {
		worker, err := selector.Select(Spec{SignatureFormat: "P"})
		require.NoError(t, err)
		require.Equal(t, "pades-worker", worker.Name)
	})

	t.Run("zero spec matches the first worker", func(t *testing.T) {
		worker, err := selector.Select(Spec{})
		require.NoError(t, err)
		require.Equal(t, "xades-worker", worker.Name)
	})

	t.Run("no match is a configuration error", func(t *testing.T) {
		_, err := selector.Select(Spec{SignatureFormat: "C"})
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})

	t.Run("validation info requirement narrows selection", func(t *testing.T) {
		worker, err := selector.Select(Spec{
			SignatureFormat:       "P",
			RequireValidationInfo: true,
		})
		require.NoError(t, err)
		require.Equal(t, "pades-lta-worker", worker.Name)
	})

	t.Run("document type narrows selection", func(t *testing.T) {
		worker, err := selector.Select(Spec{
			SignatureFormat: "P",
			DocumentType:    models.DocumentTypeContent,
		})
		require.NoError(t, err)
		require.Equal(t, "pades-worker", worker.Name)
	})
}

func TestSelectorProjections(t *testing.T) {
	selector := NewSelector(testWorkers())

	require.Equal(t, []string{"SHA256WITHECDSA", "SHA256WITHRSA"}, selector.SupportedAlgorithms())
	require.Equal(t, []string{"P", "X"}, selector.SupportedFormats())
	require.Equal(t, []string{"AdES-B-B", "AdES-B-LTA"}, selector.SupportedConformanceLevels())
	require.Equal(t, []string{"ENVELOPED", "ENVELOPING"}, selector.SupportedPackagings())
}
