package command

import "github.com/MrWong99/earshot/pkg/types"

const (
	en = types.LocaleEN
	ru = types.LocaleRU
)

// DefaultRules returns the built-in English and Russian command tables. The
// order inside each locale matters: see [Validate].
func DefaultRules(c Catalog) []Rule {
	return append(englishRules(c), russianRules(c)...)
}

func englishRules(c Catalog) []Rule {
	const notAllowed = "That app is not in my allowed list."
	return []Rule{
		{Locale: en, Prefix: "weather", AllowBare: true, RawArg: true, Action: ActionWeather, Query: true,
			Fail: "I couldn't fetch the weather right now."},
		{Locale: en, Prefix: "open playlist", Action: ActionPlayPlaylist,
			OK: "Opening playlist.", Fail: "No results in Apple Music."},
		{Locale: en, Prefix: "open", Resolve: c.App, Action: ActionOpenApp,
			OK: "Opened.", Fail: "I could not open it.", Reject: notAllowed},
		{Locale: en, Prefix: "switch to", Resolve: c.App, Action: ActionOpenApp,
			OK: "Switched.", Fail: "I could not switch.", Reject: notAllowed},
		{Locale: en, Prefix: "search for", Action: ActionWebSearch,
			OK: "Searching.", Fail: "I could not open the browser."},
		{Locale: en, Prefix: "turn on", Action: ActionPlayVideo,
			OK: "Ok", Fail: "Failed."},
		{Locale: en, Prefix: "type", RawArg: true, Action: ActionTypeText,
			OK: "Typed.", Fail: "I could not type. Check Accessibility permissions."},
		{Locale: en, Prefix: "press", Resolve: c.KeyEN, Action: ActionPressKey,
			OK: "Done.", Fail: "I could not press the key.", Reject: "Allowed keys: enter, tab, escape, space, backspace."},
		{Locale: en, Phrases: []string{"volume up", "louder"}, Action: ActionVolumeUp,
			OK: "Volume up.", Fail: "I could not change volume."},
		{Locale: en, Phrases: []string{"volume down", "quieter"}, Action: ActionVolumeDown,
			OK: "Volume down.", Fail: "I could not change volume."},
		{Locale: en, Phrases: []string{"mute"}, Action: ActionMute,
			OK: "Muted.", Fail: "I could not mute."},
		{Locale: en, Phrases: []string{"play", "pause", "post", "stop", "play/pause"}, Action: ActionPlayPause,
			OK: "OK.", Fail: "I could not control media."},
		{Locale: en, Phrases: []string{"close tab", "close the tab", "close this tab", "close chrome tab"}, Action: ActionCloseTab,
			OK: "Closed tab.", Fail: "I could not close the tab."},
		{Locale: en, Phrases: []string{"next track", "next"}, Action: ActionNextTrack,
			OK: "Next.", Fail: "I could not control media."},
		{Locale: en, Phrases: []string{"previous track", "previous", "back"}, Action: ActionPreviousTrack,
			OK: "Previous.", Fail: "I could not control media."},
		{Locale: en, Phrases: []string{"screenshot", "take screenshot"}, Action: ActionScreenshot,
			OK: "Screenshot saved.", Fail: "I could not take a screenshot."},
		{Locale: en, Phrases: []string{"close window", "close chrome window"}, Action: ActionCloseWindow,
			OK: "ok", Fail: "failed"},
		{Locale: en, Phrases: []string{"close chrome", "close google", "close google chrome"}, Action: ActionCloseBrowser,
			OK: "ok", Fail: "failed"},
		{Locale: en, Prefix: "close", Resolve: c.AppAnyLocale, Action: ActionQuitApp,
			OK: "closed", Fail: "failed to close.", Reject: "this app is not in list."},
		{Locale: en, Prefix: "quit", Resolve: c.App, Action: ActionQuitApp,
			OK: "Quit.", Fail: "I could not quit it.", Reject: notAllowed},
		{Locale: en, Prefix: "launch", RawArg: true, Action: ActionPlayVideo,
			OK: "Okay", Fail: "Failed to open YouTube."},
		{Locale: en, Prefix: "play", RawArg: true, Action: ActionPlayVideo,
			OK: "Okay", Fail: "Failed. Check Accessibility."},
	}
}

func russianRules(c Catalog) []Rule {
	return []Rule{
		{Locale: ru, Prefix: "погода", AllowBare: true, RawArg: true, Action: ActionWeather, Query: true,
			Fail: "Не удалось получить погоду."},
		{Locale: ru, Prefix: "включи", RawArg: true, Action: ActionPlayVideo,
			OK: "Хорошо.", Fail: "Не получилось. Проверь Accessibility."},
		{Locale: ru, Prefix: "поставь", RawArg: true, Action: ActionPlayVideo,
			OK: "Хорошо.", Fail: "Не получилось. Проверь Accessibility."},
		{Locale: ru, Prefix: "открой плейлист", RawArg: true, Action: ActionPlayPlaylist,
			OK: "Включаю плейлист.", Fail: "Не нашёл плейлист в Apple Music. Скажи точное название."},
		{Locale: ru, Prefix: "открой", Resolve: c.AppAnyLocale, Action: ActionOpenApp,
			OK: "Открыл.", Fail: "Не получилось открыть.", Reject: "Приложение не найдено."},
		{Locale: ru, Prefix: "переключись на", Resolve: c.AppAnyLocale, Action: ActionOpenApp,
			OK: "Переключил.", Fail: "Не получилось переключить.", Reject: "Этого приложения нет в списке разрешённых."},
		{Locale: ru, Prefix: "поиск", RawArg: true, Action: ActionWebSearch,
			OK: "Ищу.", Fail: "Не получилось открыть браузер."},
		{Locale: ru, Prefix: "напечатай", RawArg: true, Action: ActionTypeText,
			OK: "Напечатал.", Fail: "Не могу печатать. Проверь Accessibility."},
		{Locale: ru, Prefix: "нажми", Resolve: c.KeyRU, Action: ActionPressKey,
			OK: "Готово.", Fail: "Не получилось нажать.", Reject: "Разрешённые клавиши: энтер, таб, эскейп, пробел, бэкспейс."},
		{Locale: ru, Phrases: []string{"громче", "погромче"}, Action: ActionVolumeUp,
			OK: "Громче.", Fail: "Не получилось."},
		{Locale: ru, Phrases: []string{"тише", "потише"}, Action: ActionVolumeDown,
			OK: "Тише.", Fail: "Не получилось."},
		{Locale: ru, Phrases: []string{"без звука", "мут"}, Action: ActionMute,
			OK: "Без звука.", Fail: "Не получилось."},
		{Locale: ru, Phrases: []string{"плей", "играй", "пауза", "плей пауза", "включи"}, Action: ActionPlayPause,
			OK: "Ок", Fail: "Не получилось."},
		{Locale: ru, Phrases: []string{"следующий трек", "следующая", "дальше"}, Action: ActionNextTrack,
			OK: "Следующий.", Fail: "Не получилось."},
		{Locale: ru, Phrases: []string{"предыдущий трек", "предыдущая", "назад"}, Action: ActionPreviousTrack,
			OK: "Предыдущий.", Fail: "Не получилось."},
		{Locale: ru, Phrases: []string{"скриншот", "сделай скриншот"}, Action: ActionScreenshot,
			OK: "Скриншот сохранён.", Fail: "Не получилось."},
		{Locale: ru, Phrases: []string{"закрой вкладку", "закрой эту вкладку", "закрой таб", "закрой вкладку в хроме", "закрой вкладку хром"}, Action: ActionCloseTab,
			OK: "Закрыл вкладку.", Fail: "Не получилось закрыть вкладку. Проверь Accessibility."},
		{Locale: ru, Phrases: []string{"закрой окно", "закрой окно хром", "закрой окно в хроме"}, Action: ActionCloseWindow,
			OK: "Закрыл окно.", Fail: "Повтори."},
		{Locale: ru, Phrases: []string{"закрой хром", "закрой хром полностью", "закрой все вкладки", "выйди из хрома"}, Action: ActionCloseBrowser,
			OK: "Ок.", Fail: "Не получилось. Проверь Accessibility."},
		{Locale: ru, Prefix: "закрой", Resolve: c.AppAnyLocale, Action: ActionQuitApp,
			OK: "Закрыл.", Fail: "Не получилось закрыть.", Reject: "Не получилось."},
		{Locale: ru, Prefix: "выйди из", Resolve: c.AppAnyLocale, Action: ActionQuitApp,
			OK: "Вышел.", Fail: "Не получилось.", Reject: "Не найдено."},
	}
}
