package models

import "strings"

// OfflineIDPrefix marks an id that was generated on the device and is not
// known to the server. An entity whose id carries this prefix is created
// with POST; anything else is updated with PUT.
const OfflineIDPrefix = "offline_"

// SignaturePendingSentinel is the value the checklist form writes into
// AssinaturaClienteURL while the signature only exists as a local file.
const SignaturePendingSentinel = "offline_signature"

// PhotoPurposeSignature tags the checklist photo that holds the client
// signature. Other photos carry an empty or form-specific tag.
const PhotoPurposeSignature = "ASSINATURA_CLIENTE"

// HasServerID reports whether id refers to an entity the server already
// knows about.
func HasServerID(id string) bool {
	return id != "" && !strings.HasPrefix(id, OfflineIDPrefix)
}

// VisitPayload is the create/update body for a field visit.
type VisitPayload struct {
	ID          string `json:"id,omitempty"`
	ClienteID   string `json:"clienteId,omitempty"`
	ClienteNome string `json:"clienteNome,omitempty"`
	DataHora    string `json:"dataHora,omitempty"`
	TipoVisita  string `json:"tipoVisita,omitempty"`
	Observacoes string `json:"observacoes,omitempty"`
}

// ChecklistPhoto is one photo reference inside a checklist payload. While
// offline the photo lives in the attachment store and OfflinePath holds its
// file id; after upload URL holds the remote location and OfflinePath is
// cleared.
type ChecklistPhoto struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	OfflinePath string `json:"offlinePath,omitempty"`
	Tipo        string `json:"type,omitempty"`
}

// ChecklistPayload is the create/update body for an installation checklist.
type ChecklistPayload struct {
	ID                   string           `json:"id,omitempty"`
	VisitaID             string           `json:"visitaId,omitempty"`
	Itens                map[string]bool  `json:"itens,omitempty"`
	Observacoes          string           `json:"observacoes,omitempty"`
	Fotos                []ChecklistPhoto `json:"fotos,omitempty"`
	AssinaturaClienteURL *string          `json:"assinaturaClienteUrl,omitempty"`
}

// NotePayload is the append-only body for lead and client notes.
type NotePayload struct {
	Content string `json:"content"`
}
