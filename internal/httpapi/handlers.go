package httpapi

import (
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/biodoia/vettriage/internal/pipeline"
	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/models"
)

// diagnoseRequest corpo JSON della richiesta di triage senza immagine
type diagnoseRequest struct {
	Species   string `json:"species"`
	Breed     string `json:"breed"`
	Age       string `json:"age"`
	Weight    string `json:"weight"`
	Sex       string `json:"sex"`
	Neutered  bool   `json:"neutered"`
	History   string `json:"history"`
	Complaint string `json:"complaint"`
	Urgency   string `json:"urgency"`
}

// handleHealth risponde con lo stato del servizio
func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "vettriage",
	})
}

// handleProviders elenca i provider registrati e la loro disponibilità
func (s *Server) handleProviders(c fiber.Ctx) error {
	type providerStatus struct {
		ID        string `json:"id"`
		Kind      string `json:"kind"`
		Model     string `json:"model"`
		Priority  int    `json:"priority"`
		Available bool   `json:"available"`
	}

	list := func(capability providers.Capability) []providerStatus {
		available := make(map[string]bool)
		for _, cand := range s.registry.Candidates(capability) {
			available[cand.Config.ID] = true
		}

		all := s.registry.AllCandidates(capability)
		out := make([]providerStatus, 0, len(all))
		for _, cand := range all {
			out = append(out, providerStatus{
				ID:        cand.Config.ID,
				Kind:      cand.Config.Kind,
				Model:     cand.Config.Model,
				Priority:  cand.Config.Priority,
				Available: available[cand.Config.ID],
			})
		}
		return out
	}

	return c.JSON(fiber.Map{
		"vision":          list(providers.CapabilityVision),
		"text_generation": list(providers.CapabilityTextGeneration),
	})
}

// handleDiagnose avvia una run di triage. Accetta multipart/form-data con
// immagine opzionale, oppure JSON puro per le run senza immagine.
func (s *Server) handleDiagnose(c fiber.Ctx) error {
	caseInfo, image, err := s.parseDiagnoseRequest(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	report, err := s.orchestrator.Run(c.Context(), caseInfo, image)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidCase):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, pipeline.ErrImageRequired):
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		default:
			log.Error().Err(err).Msg("Triage run error")
			return fiber.ErrInternalServerError
		}
	}

	status := fiber.StatusOK
	if report.Status == "failed" {
		// La run è terminata ma senza referto utile
		status = fiber.StatusBadGateway
	}

	return c.Status(status).JSON(report)
}

// parseDiagnoseRequest estrae caso e immagine dalla richiesta
func (s *Server) parseDiagnoseRequest(c fiber.Ctx) (models.CaseInfo, *providers.ImageInput, error) {
	contentType := string(c.Request().Header.ContentType())

	if strings.HasPrefix(contentType, "multipart/form-data") {
		return s.parseMultipart(c)
	}

	var req diagnoseRequest
	if err := c.Bind().Body(&req); err != nil {
		return models.CaseInfo{}, nil, errors.New("invalid request body")
	}

	return models.CaseInfo{
		Species:   req.Species,
		Breed:     req.Breed,
		Age:       req.Age,
		Weight:    req.Weight,
		Sex:       req.Sex,
		Neutered:  req.Neutered,
		History:   req.History,
		Complaint: req.Complaint,
		Urgency:   models.Urgency(req.Urgency),
	}, nil, nil
}

func (s *Server) parseMultipart(c fiber.Ctx) (models.CaseInfo, *providers.ImageInput, error) {
	neutered, _ := strconv.ParseBool(c.FormValue("neutered"))

	caseInfo := models.CaseInfo{
		Species:   c.FormValue("species"),
		Breed:     c.FormValue("breed"),
		Age:       c.FormValue("age"),
		Weight:    c.FormValue("weight"),
		Sex:       c.FormValue("sex"),
		Neutered:  neutered,
		History:   c.FormValue("history"),
		Complaint: c.FormValue("complaint"),
		Urgency:   models.Urgency(c.FormValue("urgency")),
	}

	header, err := c.FormFile("image")
	if err != nil {
		// Immagine assente: run vision-less
		return caseInfo, nil, nil
	}

	file, err := header.Open()
	if err != nil {
		return caseInfo, nil, errors.New("cannot read uploaded image")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return caseInfo, nil, errors.New("cannot read uploaded image")
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	image := &providers.ImageInput{Data: data, MimeType: mimeType}
	if err := image.Validate(); err != nil {
		return caseInfo, nil, err
	}

	return caseInfo, image, nil
}
