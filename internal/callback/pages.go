package callback

import (
	"fmt"
	"html"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>%s</title>
  <style>
    body { font-family: sans-serif; background: #1e1e1e; color: #e0e0e0;
           display: flex; align-items: center; justify-content: center;
           height: 100vh; margin: 0; }
    .card { text-align: center; padding: 2rem 3rem; background: #2a2a2a;
            border-radius: 8px; }
    h1 { margin: 0 0 0.5rem; font-size: 1.4rem; }
    p { margin: 0; color: #9e9e9e; }
  </style>
</head>
<body>
  <div class="card">
    <h1>%s</h1>
    <p>%s</p>
  </div>
</body>
</html>
`

func successPage() string {
	return fmt.Sprintf(pageTemplate,
		"Login successful",
		"Login successful",
		"You can close this tab and return to the game.")
}

func errorPage(reason string) string {
	return fmt.Sprintf(pageTemplate,
		"Login failed",
		"Login failed",
		"The provider reported: "+html.EscapeString(reason))
}
