package chart

import (
	"fmt"

	"github.com/user/voterchart/internal/layout"
)

// ContainerID is the element id the chart mounts into.
const ContainerID = "voters_2025"

// SelectID is the id of the province selector.
const SelectID = "categorySelect"

// DropdownStyle is the inline style of the province selector.
const DropdownStyle = "display:block;width:100%;max-width:400px;margin:10px 0;padding:8px;" +
	"font-size:16px;border:1px solid #ccc;border-radius:4px;background-color:#fff"

// StyleSheet returns the global rules injected next to the chart. The media
// query uses layout.MobileBreakpoint so both thresholds stay identical.
func StyleSheet() string {
	return fmt.Sprintf(`#%[1]s {
    width: 100%%;
    max-width: 100%%;
    overflow-x: hidden;
}

@media (max-width: %[2]dpx) {
    .x-axis text {
        font-size: 12px;
        font-family: "%[3]s";
    }

    .y-axis text {
        font-size: 12px;
        font-family: "%[3]s";
    }
}
`, ContainerID, layout.MobileBreakpoint, FontFamily)
}
