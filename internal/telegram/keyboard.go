package telegram

import tele "gopkg.in/telebot.v4"

// inlineBtn is a convenience wrapper for inline button properties.
type inlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// inlineRows builds an inline keyboard from rows of inlineBtn.
func inlineRows(rows ...[]inlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// chunk splits a flat list of buttons into rows with up to n buttons per row.
func chunk(buttons []inlineBtn, n int) [][]inlineBtn {
	if n <= 1 {
		out := make([][]inlineBtn, 0, len(buttons))
		for _, b := range buttons {
			out = append(out, []inlineBtn{b})
		}
		return out
	}
	var rows [][]inlineBtn
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}
