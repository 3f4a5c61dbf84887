package api

// Icon is a web app manifest icon.
type Icon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"`
	Type    string `json:"type"`
	Purpose string `json:"purpose,omitempty"`
}

// Manifest is the installable web app manifest.
type Manifest struct {
	Name            string `json:"name"`
	ShortName       string `json:"short_name"`
	Description     string `json:"description"`
	StartURL        string `json:"start_url"`
	Display         string `json:"display"`
	Orientation     string `json:"orientation"`
	ThemeColor      string `json:"theme_color"`
	BackgroundColor string `json:"background_color"`
	Icons           []Icon `json:"icons"`
}

// DefaultManifest describes the EclesIA app.
func DefaultManifest() Manifest {
	return Manifest{
		Name:            "EclesIA - Assistente da Igreja Episcopal",
		ShortName:       "EclesIA",
		Description:     "Assistente da Igreja Episcopal Carismática do Brasil",
		StartURL:        "/",
		Display:         "standalone",
		Orientation:     "portrait",
		ThemeColor:      "#5C3D2E",
		BackgroundColor: "#F5F5F0",
		Icons: []Icon{
			{Src: "favicon.ico", Sizes: "64x64 32x32 24x24 16x16", Type: "image/x-icon"},
			{Src: "img/episcopal_logo192.png", Sizes: "192x192", Type: "image/png", Purpose: "any maskable"},
			{Src: "img/episcopal_logo512.png", Sizes: "512x512", Type: "image/png", Purpose: "any maskable"},
		},
	}
}
