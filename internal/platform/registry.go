package platform

import (
	"fmt"
	"sort"
)

// constructors - закрытый реестр платформ. Полнота проверяется тестом
// по списку All.
var constructors = map[Name]func(Deps) Adapter{
	Douyin:      newDouyin,
	Buyin:       newBuyin,
	Xiaohongshu: newXiaohongshu,
	WxChannel:   newWxChannel,
	Taobao:      newTaobao,
	Dev:         newDev,
}

// All - все известные платформы в порядке объявления.
var All = []Name{Douyin, Buyin, Xiaohongshu, WxChannel, Taobao, Dev}

var titles = map[Name]string{
	Douyin:      "抖音小店",
	Buyin:       "巨量百应",
	Xiaohongshu: "小红书千帆",
	WxChannel:   "视频号助手",
	Taobao:      "淘宝直播",
	Dev:         "测试平台",
}

func (n Name) Title() string {
	if t, ok := titles[n]; ok {
		return t
	}
	return string(n)
}

func (n Name) Valid() bool {
	_, ok := constructors[n]
	return ok
}

// ParseName проверяет строку из API или конфигурации.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", fmt.Errorf("неизвестная платформа %q, доступны: %v", s, Names())
	}
	return n, nil
}

func Names() []string {
	out := make([]string, 0, len(constructors))
	for n := range constructors {
		out = append(out, string(n))
	}
	sort.Strings(out)
	return out
}

// New создаёт адаптер платформы.
func New(name Name, deps Deps) (Adapter, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("неизвестная платформа %q", name)
	}
	return ctor(deps), nil
}
