package feed

import (
	"strconv"
	"strings"

	"github.com/luckylove/server/internal/model"
)

type actionCopy struct {
	selfVerb  string
	otherVerb string
	singular  string
	plural    string
}

var actionLabels = map[string]actionCopy{
	model.ActionCreateReview:        {"agregaste", "agrego", "resena nueva", "resenas nuevas"},
	model.ActionCreateChallenge:     {"creaste", "creo", "reto nuevo", "retos nuevos"},
	model.ActionCreateMessage:       {"enviaste", "envio", "mensaje nuevo", "mensajes nuevos"},
	model.ActionCreateReward:        {"creaste", "creo", "beneficio nuevo", "beneficios nuevos"},
	model.ActionEditDay:             {"editaste", "edito", "dia del calendario", "dias del calendario"},
	model.ActionAnswerDailyQuestion: {"respondiste", "respondio", "pregunta diaria", "preguntas diarias"},
}

var unknownCopy = actionCopy{"hiciste", "hizo", "novedad", "novedades"}

const (
	selfName    = "Tu"
	partnerName = "Pareja"
)

func copyFor(action string) actionCopy {
	if c, ok := actionLabels[action]; ok {
		return c
	}
	return unknownCopy
}

// Describe renders "<name> <verb> <count> <label>".
func Describe(actorName, action string, count int, self bool) string {
	c := copyFor(action)
	verb := c.otherVerb
	if self {
		verb = c.selfVerb
	}
	label := c.plural
	if count == 1 {
		label = c.singular
	}
	return actorName + " " + verb + " " + strconv.Itoa(count) + " " + label
}

// DisplayName picks the alias, then the email local part, then a generic
// fallback.
func DisplayName(p *model.Profile) string {
	if p == nil {
		return partnerName
	}
	if p.Alias != nil {
		if alias := strings.TrimSpace(*p.Alias); alias != "" {
			return alias
		}
	}
	if local, _, _ := strings.Cut(p.Email, "@"); local != "" {
		return local
	}
	return partnerName
}
