package widget

import (
	"html/template"
	"sort"
	"strings"

	domain "github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/pkg/config"
)

// Theme carries the host-store branding read once from configuration.
type Theme struct {
	AccentColor   string
	LogoPath      string
	PoweredByLogo string
}

func themeFromConfig() Theme {
	return Theme{
		AccentColor:   config.ThemeColor,
		LogoPath:      config.LogoPath,
		PoweredByLogo: config.PoweredByLogo,
	}
}

type greetingTemplateData struct {
	Theme Theme
}

type resultTemplateData struct {
	RecommendedSize string
	Measurements    []measurementRow
	Stored          bool
}

type measurementRow struct {
	Name  string
	Value string
}

var (
	greetingTemplate = template.Must(template.New("greeting").Parse(`<div class="sc-widget sc-greeting" data-accent="{{.Theme.AccentColor}}">
  {{if .Theme.LogoPath}}<img class="sc-logo" src="{{.Theme.LogoPath}}" alt="">{{end}}
  <p class="sc-greeting-text">Find your perfect size</p>
  <button class="sc-action" data-intent="start">Get my size</button>
  {{if .Theme.PoweredByLogo}}<img class="sc-powered-by" src="{{.Theme.PoweredByLogo}}" alt="Powered by MIQYAS">{{end}}
</div>`))

	connectingTemplate = template.Must(template.New("connecting").Parse(`<div class="sc-widget sc-connecting" data-session-id="{{.SessionID}}">
  <div class="sc-spinner" role="status" aria-label="Connecting"></div>
  <p class="sc-connecting-text">Connecting&hellip;</p>
</div>`))

	awaitingPeerTemplate = template.Must(template.New("awaitingPeer").Parse(`<div class="sc-widget sc-awaiting-peer" data-session-id="{{.SessionID}}">
  <p class="sc-qr-hint">Scan with your phone to continue</p>
  <div class="sc-qr" data-qr-payload="{{.JoinURL}}"></div>
</div>`))

	inProgressTemplate = template.Must(template.New("inProgress").Parse(`<div class="sc-widget sc-in-progress" data-session-id="{{.SessionID}}">
  <iframe class="sc-flow-frame" src="{{.FrameURL}}" allow="camera"></iframe>
</div>`))

	resultTemplate = template.Must(template.New("result").Parse(`<div class="sc-widget sc-result{{if .Stored}} sc-result--stored{{end}}">
  {{if .RecommendedSize}}<p class="sc-size">Your size: <strong>{{.RecommendedSize}}</strong></p>{{else}}<p class="sc-size sc-size--empty">No size recommendation available</p>{{end}}
  {{if .Measurements}}<ul class="sc-measurements">
    {{range .Measurements}}<li><span class="sc-measure-name">{{.Name}}</span> <span class="sc-measure-value">{{.Value}}</span></li>
    {{end}}</ul>{{end}}
  <button class="sc-action" data-intent="retake">Retake</button>
  <button class="sc-action sc-action--secondary" data-intent="close">Close</button>
</div>`))

	errorTemplate = template.Must(template.New("error").Parse(`<div class="sc-widget sc-error"{{if .ErrorCode}} data-error-code="{{.ErrorCode}}"{{end}}>
  <p class="sc-error-text">{{if .ErrorMessage}}{{.ErrorMessage}}{{else}}Something went wrong{{end}}</p>
  <button class="sc-action" data-intent="retry">Try again</button>
  <button class="sc-action sc-action--secondary" data-intent="close">Close</button>
</div>`))
)

// RenderView renders a view model to its HTML fragment. ViewHidden renders
// to the empty string.
func RenderView(vm ViewModel) string {
	var sb strings.Builder
	var err error
	switch vm.Kind {
	case ViewGreeting:
		err = greetingTemplate.Execute(&sb, greetingTemplateData{Theme: themeFromConfig()})
	case ViewConnecting:
		err = connectingTemplate.Execute(&sb, vm)
	case ViewAwaitingPeer:
		err = awaitingPeerTemplate.Execute(&sb, vm)
	case ViewInProgress:
		err = inProgressTemplate.Execute(&sb, vm)
	case ViewResult:
		err = resultTemplate.Execute(&sb, resultData(vm))
	case ViewError:
		err = errorTemplate.Execute(&sb, vm)
	default:
		return ""
	}
	if err != nil {
		return ""
	}
	return sb.String()
}

func resultData(vm ViewModel) resultTemplateData {
	data := resultTemplateData{Stored: vm.Stored}
	if vm.Result == nil {
		return data
	}
	if vm.Result.RecommendedSize != nil {
		data.RecommendedSize = *vm.Result.RecommendedSize
	}
	names := make([]string, 0, len(vm.Result.Measurements))
	for name := range vm.Result.Measurements {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data.Measurements = append(data.Measurements, measurementRow{
			Name:  displayName(name),
			Value: domain.FormatCm(vm.Result.Measurements[name]),
		})
	}
	return data
}

func displayName(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
