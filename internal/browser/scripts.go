package browser

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Results of loadMoreScript.
const (
	loadMoreClicked   = "clicked"
	loadMoreExhausted = "exhausted"
	loadMoreMissing   = "missing"
)

// exhaustedLabel is the pagination button text once the listing has no more stories.
const exhaustedLabel = "NO MORE STORIES TO LOAD"

// componentSelector matches elements by their data-component attribute.
func componentSelector(tag, id string) string {
	return fmt.Sprintf("%s[data-component=%s]", tag, strconv.Quote(id))
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func consentScript(id string) string {
	return fmt.Sprintf(`(() => {
  const b = document.querySelector(%s);
  if (!b) return false;
  b.click();
  return true;
})()`, jsString(componentSelector("button", id)))
}

func linksScript(id string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(a => a.href).filter(Boolean)`,
		jsString(componentSelector("h3", id)+" a"))
}

func oldestScript(id string) string {
	return fmt.Sprintf(`(() => {
  const t = document.querySelectorAll(%s);
  if (t.length === 0) return "";
  return t[t.length - 1].getAttribute("datetime") || "";
})()`, jsString(componentSelector("time", id)))
}

func loadMoreScript(id string) string {
	return fmt.Sprintf(`(() => {
  window.scrollTo(0, document.body.scrollHeight);
  const b = document.querySelector(%s);
  if (!b) return %s;
  if (b.innerText.trim().toUpperCase() === %s) return %s;
  b.click();
  return %s;
})()`,
		jsString(componentSelector("button", id)),
		jsString(loadMoreMissing),
		jsString(exhaustedLabel),
		jsString(loadMoreExhausted),
		jsString(loadMoreClicked),
	)
}
